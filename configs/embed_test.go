package configs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/prometheus/configs"
	"github.com/Aman-CERP/prometheus/internal/matcher"
)

func TestDefaultPatterns_OptionDefaults(t *testing.T) {
	defs, err := matcher.ParseYAML(configs.DefaultPatterns)
	require.NoError(t, err)

	opts := make(map[string]matcher.Option, len(defs))
	for _, d := range defs {
		opts[d.Name] = d.Options
	}

	// No options key: case-insensitive by default.
	assert.True(t, opts["CPF"].Has(matcher.CaseInsensitive))
	assert.True(t, opts["Email"].Has(matcher.CaseInsensitive))
	// options: [] turns every option off.
	assert.Equal(t, matcher.Option(0), opts["Phone"])
	assert.Equal(t, matcher.Option(0), opts["IPv4"])
}
