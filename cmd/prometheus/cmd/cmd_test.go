package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points user config and logs at a temp dir and clears the
// environment overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, name := range []string{
		"PROMETHEUS_WORKERS", "PROMETHEUS_CONTEXT_WINDOW", "PROMETHEUS_LOG_LEVEL",
		"PROMETHEUS_PATTERNS", "PROMETHEUS_ARCHIVE_TIMEOUT", "PROMETHEUS_ENTRY_TIMEOUT",
	} {
		t.Setenv(name, "")
	}
	return home
}

// execute runs the root command with args and returns its stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Date(2023, 3, 14, 15, 9, 26, 0, time.UTC),
		})
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	stdout, _, err := execute(t, "--help")

	require.NoError(t, err)
	assert.Contains(t, stdout, "prometheus")
	for _, sub := range []string{"scan", "patterns", "config", "logs", "version"} {
		assert.Contains(t, stdout, sub)
	}
}

func TestScanCmd_WritesReports(t *testing.T) {
	// Given: one archive holding a CPF in a text document
	isolate(t)
	root := t.TempDir()
	writeArchive(t, filepath.Join(root, "case1.ufdr"), map[string]string{
		"docs/letter.txt": "documento 123.456.789-00 emitido\n",
	})
	out := t.TempDir()
	jsonPath := filepath.Join(out, "results.json")
	csvPath := filepath.Join(out, "results.csv")

	// When: scanning with plain output
	stdout, _, err := execute(t, "scan", root, "--no-tui", "-o", jsonPath, "--csv", csvPath)

	// Then: both reports carry the match and the run exits cleanly
	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))
	assert.Contains(t, stdout, "[SCAN]")
	assert.Contains(t, stdout, "Scanned 1 archives")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pattern_type": "CPF"`)
	assert.Contains(t, string(data), `"match_value": "123.456.789-00"`)

	data, err = os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "source_file,"))
	assert.Contains(t, string(data), "123.456.789-00")
}

func TestScanCmd_EmptyTreeReportsNoMatches(t *testing.T) {
	isolate(t)
	jsonPath := filepath.Join(t.TempDir(), "results.json")

	stdout, _, err := execute(t, "scan", t.TempDir(), "--no-tui", "-o", jsonPath)

	require.NoError(t, err)
	assert.Contains(t, stdout, "No matches")
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestScanCmd_FailedArchiveExitsOne(t *testing.T) {
	// Given: a valid archive next to a corrupt one
	isolate(t)
	root := t.TempDir()
	writeArchive(t, filepath.Join(root, "good.ufdr"), map[string]string{
		"notes.txt": "contato: perito@example.com",
	})
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.ufdr"), []byte("not a zip"), 0o644))
	jsonPath := filepath.Join(t.TempDir(), "results.json")

	// When: scanning
	stdout, _, err := execute(t, "scan", root, "--no-tui", "-o", jsonPath)

	// Then: the good archive is reported and the run exits with 1
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, stdout, "[FAIL]")
	assert.Contains(t, stdout, "1 failed")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "perito@example.com")
}

func TestScanCmd_FatalConfigurationExitsTwo(t *testing.T) {
	isolate(t)
	badPatterns := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(badPatterns, []byte("patterns:\n  - name: Broken\n    regex: '([a-z'\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"uncompilable pattern", []string{"--patterns", badPatterns}},
		{"missing pattern file", []string{"--patterns", filepath.Join(t.TempDir(), "none.yaml")}},
		{"negative workers", []string{"--workers", "-1"}},
		{"bad timeout", []string{"--entry-timeout", "soon"}},
		{"unknown format", []string{"--formats", "hologram"}},
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "none.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"scan", t.TempDir(), "--no-tui", "-o", filepath.Join(t.TempDir(), "r.json")}, tt.args...)
			_, _, err := execute(t, args...)

			require.Error(t, err)
			assert.Equal(t, ExitFatal, ExitCode(err))
		})
	}
}

func TestScanCmd_MissingRootIsFatal(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "scan", filepath.Join(t.TempDir(), "missing"), "--no-tui")

	require.Error(t, err)
	assert.Equal(t, ExitFatal, ExitCode(err))
}

func TestScanCmd_CaseConfigAndFlagPrecedence(t *testing.T) {
	// Given: a case config that names a CSV output and only searches sqlite
	isolate(t)
	root := t.TempDir()
	writeArchive(t, filepath.Join(root, "case.ufdr"), map[string]string{
		"letter.txt": "123.456.789-00",
	})
	out := t.TempDir()
	csvPath := filepath.Join(out, "from-config.csv")
	cfg := "scan:\n  formats: [sqlite]\noutput:\n  csv: " + csvPath + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".prometheus.yaml"), []byte(cfg), 0o644))
	jsonPath := filepath.Join(out, "r.json")

	// When: the flag re-enables text documents
	_, _, err := execute(t, "scan", root, "--no-tui", "-o", jsonPath, "--formats", "text")

	// Then: the flag wins for formats and the config still names the CSV
	require.NoError(t, err)
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "123.456.789-00")
	assert.FileExists(t, csvPath)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(os.ErrPermission))
	assert.Equal(t, ExitFailure, ExitCode(&exitError{code: ExitFailure, msg: "2 archives failed"}))
}

func TestPrintError(t *testing.T) {
	buf := &bytes.Buffer{}
	printError(buf, os.ErrNotExist)
	assert.Equal(t, "Error: file does not exist\n", buf.String())

	buf.Reset()
	printError(buf, &exitError{code: ExitFailure, msg: "already shown"})
	assert.Empty(t, buf.String())
}

func TestRootCmd_ProfilesScan(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	heap := filepath.Join(dir, "heap.prof")

	_, _, err := execute(t, "scan", t.TempDir(), "--no-tui", "-o", filepath.Join(dir, "r.json"),
		"--profile-cpu", cpu, "--profile-mem", heap)
	require.NoError(t, err)
	require.NoError(t, stopProfiling())

	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}
