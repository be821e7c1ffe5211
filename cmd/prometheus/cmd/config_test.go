package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/prometheus/internal/config"
)

func TestConfigCmd_HasSubcommands(t *testing.T) {
	configCmd, _, err := NewRootCmd().Find([]string{"config"})
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, sc := range configCmd.Commands() {
		names[sc.Name()] = true
	}
	assert.True(t, names["init"], "should have init command")
	assert.True(t, names["show"], "should have show command")
	assert.True(t, names["path"], "should have path command")
}

func TestConfigInit_CreatesAndBacksUp(t *testing.T) {
	// Given: no user config
	isolate(t)

	// When: init runs twice, the second time forced
	stdout, _, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Created user configuration")
	assert.FileExists(t, config.GetUserConfigPath())

	stdout, _, err = execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "already exists")

	stdout, _, err = execute(t, "config", "init", "--force")
	require.NoError(t, err)

	// Then: the forced run keeps a backup
	assert.Contains(t, stdout, "Backup:")
	backups, err := config.ListUserConfigBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	// And: the template is a valid configuration
	_, err = config.LoadFile(config.GetUserConfigPath())
	assert.NoError(t, err)
}

func TestConfigShow_JSONDefaults(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "config", "show", "--source", "defaults", "--json")
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, config.NewConfig().Scan.Extensions, got.Scan.Extensions)
	assert.Equal(t, 40, got.Scan.ContextWindow)
}

func TestConfigShow_MergedReadsCaseConfig(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".prometheus.yaml"), []byte("scan:\n  workers: 3\n"), 0o644))

	stdout, _, err := execute(t, "config", "show", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "workers: 3")

	_, _, err = execute(t, "config", "show", "--source", "bogus")
	assert.Error(t, err)
}
