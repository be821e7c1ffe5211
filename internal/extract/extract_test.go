package extract

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

var modified = time.Date(2024, 2, 29, 23, 59, 58, 0, time.UTC)

func memEntry(name string, format evidence.Format, data []byte) evidence.Entry {
	return evidence.NewEntry(name, int64(len(data)), evidence.KindDocument, format, modified,
		func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil })
}

// run extracts an entry through the registry and returns its units.
func run(t *testing.T, name string, format evidence.Format, data []byte) []evidence.TextUnit {
	t.Helper()
	units, err := tryRun(name, format, data)
	require.NoError(t, err)
	return units
}

func tryRun(name string, format evidence.Format, data []byte) ([]evidence.TextUnit, error) {
	return tryRunWith(Options{}, name, format, data)
}

func tryRunWith(opts Options, name string, format evidence.Format, data []byte) ([]evidence.TextUnit, error) {
	var units []evidence.TextUnit
	err := NewRegistry(opts).Extract(context.Background(), memEntry(name, format, data), "case.ufdr",
		func(u evidence.TextUnit) error {
			units = append(units, u)
			return nil
		})
	return units, err
}

// located renders units as "locator=text" for compact assertions.
func located(units []evidence.TextUnit) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.Locator.String()+"="+u.Text)
	}
	return out
}

func TestRegistry_CoversEveryDocumentFormat(t *testing.T) {
	r := NewRegistry(Options{})

	for _, f := range evidence.DocumentFormats() {
		e, ok := r.Get(f)
		require.True(t, ok, "missing extractor for %s", f)
		assert.Equal(t, f, e.Format())
	}
	assert.Len(t, r.Formats(), len(evidence.DocumentFormats()))
}

func TestRegistry_UnknownFormat(t *testing.T) {
	_, err := tryRun("blob.bin", evidence.FormatNone, []byte("x"))

	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeEntryRead, perrors.GetCode(err))
}

func TestText_OneUnitPerLine(t *testing.T) {
	// Given a text file with a blank line and CRLF endings
	data := []byte("first line\r\n\r\nCPF 123.456.789-00\r\nlast")

	units := run(t, "notes/a.txt", evidence.FormatText, data)

	// Then blank lines are skipped but still counted
	assert.Equal(t, []string{
		"line=1=first line",
		"line=3=CPF 123.456.789-00",
		"line=4=last",
	}, located(units))

	u := units[0]
	assert.Equal(t, "case.ufdr", u.ArchivePath)
	assert.Equal(t, "notes/a.txt", u.EntryPath)
	assert.Equal(t, evidence.FormatText, u.ExtractorKind)
	assert.True(t, u.Timestamp.Equal(modified))
	assert.False(t, u.Lossy)
}

func TestText_LossyDecodeIsFlagged(t *testing.T) {
	units := run(t, "a.log", evidence.FormatText, []byte("Jos\xe9 da Silva"))

	require.Len(t, units, 1)
	assert.Equal(t, "José da Silva", units[0].Text)
	assert.True(t, units[0].Lossy)
}

func TestText_HTMLKeepsTextNodesAndSourceLines(t *testing.T) {
	data := []byte("<html>\n<head><style>.x{}</style><script>var cpf='111.222.333-44';</script></head>\n<body>\n<p>Hello &amp; bye</p>\n<p>second\nline</p>\n</body></html>")

	units := run(t, "page.html", evidence.FormatText, data)

	assert.Equal(t, []string{
		"line=4=Hello & bye",
		"line=5=second",
		"line=6=line",
	}, located(units))
}

func TestText_XMLKeepsCDATASections(t *testing.T) {
	data := []byte("<?xml version=\"1.0\"?>\n<msgs>\n<m><![CDATA[cpf 123.456.789-00]]></m>\n<m>plain 987.654.321-00</m>\n</msgs>")

	units := run(t, "export/chat.xml", evidence.FormatText, data)

	assert.Equal(t, []string{
		"line=3=cpf 123.456.789-00",
		"line=4=plain 987.654.321-00",
	}, located(units))
}

func TestText_RTFStripsControlWords(t *testing.T) {
	data := []byte(`{\rtf1\ansi{\*\generator Test;}\pard Contato: ana@example.com\par Jos\'e9\par}`)

	units := run(t, "doc.rtf", evidence.FormatText, data)

	assert.Equal(t, []string{
		"line=1=Contato: ana@example.com",
		"line=2=José",
	}, located(units))
}

func TestDelimited_JoinsCellsPerRecord(t *testing.T) {
	data := []byte("name,cpf\nAna,123.456.789-00\n\"Silva, Bruno\",\"multi\nline\"\n")

	units := run(t, "export.csv", evidence.FormatDelimited, data)

	assert.Equal(t, []string{
		"line=1=name | cpf",
		"line=2=Ana | 123.456.789-00",
		"line=3=Silva, Bruno | multi\nline",
	}, located(units))
}

func TestDelimited_TabSeparated(t *testing.T) {
	units := run(t, "export.TSV", evidence.FormatDelimited, []byte("a\tb,c\n"))

	assert.Equal(t, []string{"line=1=a | b,c"}, located(units))
}

func TestEmitErrorStopsExtraction(t *testing.T) {
	stop := perrors.InternalError("stop", nil)
	calls := 0

	err := NewRegistry(Options{}).Extract(context.Background(),
		memEntry("a.txt", evidence.FormatText, []byte("1\n2\n3")), "case.ufdr",
		func(evidence.TextUnit) error {
			calls++
			return stop
		})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestCancelledContextStopsExtraction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRegistry(Options{}).Extract(ctx,
		memEntry("a.txt", evidence.FormatText, []byte("1\n2")), "case.ufdr",
		func(evidence.TextUnit) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}
