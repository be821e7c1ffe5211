package matcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []Definition
	}{
		{
			name: "patterns key with regex and flags",
			file: "p.json",
			content: `{"patterns": [
				{"name": "CPF", "regex": "\\d{3}\\.\\d{3}\\.\\d{3}-\\d{2}"},
				{"name": "Email", "pattern": "[a-z]+@[a-z]+", "flags": ["ignorecase", "multiline"]}
			]}`,
			want: []Definition{
				{Name: "CPF", Expression: `\d{3}\.\d{3}\.\d{3}-\d{2}`, Options: CaseInsensitive},
				{Name: "Email", Expression: "[a-z]+@[a-z]+", Options: CaseInsensitive | Multiline},
			},
		},
		{
			name:    "bare list",
			file:    "p.yaml",
			content: "- name: Phone\n  regex: '\\d{4}-\\d{4}'\n  flags: unicode\n",
			want:    []Definition{{Name: "Phone", Expression: `\d{4}-\d{4}`, Options: Unicode}},
		},
		{
			name:    "name to expression keeps file order",
			file:    "p.json",
			content: `{"Zeta": "z+", "Alpha": "a+"}`,
			want: []Definition{
				{Name: "Zeta", Expression: "z+", Options: CaseInsensitive},
				{Name: "Alpha", Expression: "a+", Options: CaseInsensitive},
			},
		},
		{
			name:    "name to mapping",
			file:    "p.yml",
			content: "Token:\n  expression: 'tok_[0-9]+'\n  options: [dotall]\nPlain:\n  expression: x\n  options: []\n",
			want: []Definition{
				{Name: "Token", Expression: "tok_[0-9]+", Options: DotAll},
				{Name: "Plain", Expression: "x"},
			},
		},
		{
			name:    "comma separated option string",
			file:    "p.yaml",
			content: "patterns:\n  - name: A\n    regex: a\n    options: \"i, s\"\n",
			want:    []Definition{{Name: "A", Expression: "a", Options: CaseInsensitive | DotAll}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defs, err := LoadFile(writeFile(t, tc.file, tc.content))
			require.NoError(t, err)
			assert.Equal(t, tc.want, defs)
		})
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"invalid json", "p.json", `{"patterns": [`},
		{"trailing json", "p.json", `{"A": "a"} {"B": "b"}`},
		{"invalid yaml", "p.yaml", "a: [unclosed"},
		{"empty file", "p.yaml", ""},
		{"empty list", "p.json", `[]`},
		{"scalar root", "p.yaml", "just a string"},
		{"missing expression", "p.yaml", "- name: A\n"},
		{"unknown option", "p.yaml", "- name: A\n  regex: a\n  flags: [verbose]\n"},
		{"duplicate names", "p.yaml", "- {name: A, regex: a}\n- {name: A, regex: b}\n"},
		{"null expression", "p.yaml", "CPF:\n"},
		{"non-string option", "p.yaml", "- name: A\n  regex: a\n  flags: [[i]]\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defs, err := LoadFile(writeFile(t, tc.file, tc.content))
			require.Error(t, err)
			assert.Nil(t, defs)
			assert.Equal(t, perrors.ErrCodeConfigInvalid, perrors.GetCode(err))
			assert.True(t, perrors.IsFatal(err))
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeConfigNotFound, perrors.GetCode(err))
	assert.True(t, perrors.IsFatal(err))
}

func TestLoadFile_DetailsCarryPath(t *testing.T) {
	path := writeFile(t, "p.yaml", "")

	_, err := LoadFile(path)

	var pe *perrors.PrometheusError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, path, pe.Details["path"])
}

func TestLoadedPatternsCompile(t *testing.T) {
	defs, err := ParseYAML([]byte("CPF: '\\d{3}\\.\\d{3}\\.\\d{3}-\\d{2}'\nEmail: '[\\w.+-]+@[\\w-]+\\.[\\w.]+'\n"))
	require.NoError(t, err)

	m, err := Compile(defs, Options{ContextWindow: DefaultContextWindow})
	require.NoError(t, err)
	assert.Equal(t, []string{"CPF", "Email"}, m.Names())
}
