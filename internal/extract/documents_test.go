package extract

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/prometheus/internal/archive"
	perrors "github.com/Aman-CERP/prometheus/internal/errors"
	"github.com/Aman-CERP/prometheus/internal/evidence"
)

const multipartMessage = `From: Alice <alice@example.com>
To: bob@example.com
Subject: =?UTF-8?B?w4FyZWE=?=
Date: Mon, 2 Jan 2023 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="XYZ"

--XYZ
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

CPF 123.456.789-00
Segunda linha=C3=A1
--XYZ
Content-Type: text/html; charset=utf-8

<p>email <b>ana@example.com</b></p>
--XYZ
Content-Type: text/plain
Content-Disposition: attachment; filename="a.txt"
Content-Transfer-Encoding: base64

c2VjcmV0
--XYZ--
`

func TestEmail_HeadersAndParts(t *testing.T) {
	units := run(t, "mail/1.eml", evidence.FormatEmail, []byte(multipartMessage))

	fields := map[string]string{}
	var body []string
	for _, u := range units {
		assert.Equal(t, evidence.FormatEmail, u.ExtractorKind)
		if u.Locator.Field != "" {
			fields[u.Locator.Field] = u.Text
			continue
		}
		body = append(body, u.Locator.String()+"="+strings.TrimSpace(u.Text))
	}

	assert.Equal(t, map[string]string{
		"Subject": "Área",
		"From":    "Alice <alice@example.com>",
		"To":      "bob@example.com",
		"Date":    "Mon, 2 Jan 2023 10:00:00 +0000",
	}, fields)

	require.GreaterOrEqual(t, len(body), 3)
	assert.Equal(t, "part=1;line=1=CPF 123.456.789-00", body[0])
	assert.Equal(t, "part=1;line=2=Segunda linhaá", body[1])
	assert.True(t, strings.HasPrefix(body[2], "part=2;line=1="))
	assert.Contains(t, body[2], "ana@example.com")
	assert.NotContains(t, body[2], "<b>")

	for _, u := range units {
		assert.NotContains(t, u.Text, "secret", "attachments are not searched")
	}
}

func TestEmail_SinglePartWithoutContentType(t *testing.T) {
	msg := "Subject: hi\r\n\r\nline one\r\nline two\r\n"

	units := run(t, "a.eml", evidence.FormatEmail, []byte(msg))

	assert.Equal(t, []string{
		"field=Subject=hi",
		"part=1;line=1=line one",
		"part=1;line=2=line two",
	}, located(units))
}

func TestEmail_MissingBoundaryIsEntryFailure(t *testing.T) {
	msg := "Subject: x\nContent-Type: multipart/mixed\n\nbody\n"

	_, err := tryRun("a.eml", evidence.FormatEmail, []byte(msg))

	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeEntryRead, perrors.GetCode(err))
}

// buildTextPDF assembles a one-page PDF whose content stream shows text,
// with a correct cross-reference table.
func buildTextPDF(t *testing.T, stream string) []byte {
	t.Helper()
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDF_OneUnitPerPage(t *testing.T) {
	data := buildTextPDF(t, "BT\n/F1 12 Tf\n72 720 Td\n(CPF 123.456.789-00) Tj\nET")

	units := run(t, "docs/report.pdf", evidence.FormatPDF, data)

	require.Len(t, units, 1)
	assert.Equal(t, 1, units[0].Locator.Page)
	assert.Contains(t, units[0].Text, "CPF 123.456.789-00")
	assert.Equal(t, evidence.FormatPDF, units[0].ExtractorKind)
}

func TestPDF_GarbageIsEntryFailure(t *testing.T) {
	_, err := tryRun("bad.pdf", evidence.FormatPDF, []byte("%PDF-1.4 not really"))

	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeEntryRead, perrors.GetCode(err))
}

func TestStreamText(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{"simple show", "BT (Hello) Tj ET", "Hello"},
		{"kerned array", "BT [(Hel) -20 (lo) -250 (world)] TJ ET", "Hello world"},
		{"positioning breaks lines", "BT (one) Tj 0 -14 Td (two) Tj ET", "one\ntwo"},
		{"quote operator", "BT (a) Tj (b) ' ET", "a\nb"},
		{"escapes", `BT (a\(b\)c\\ \101) Tj ET`, `a(b)c\ A`},
		{"hex string", "BT <48693F> Tj ET", "Hi?"},
		{"nested parens", "BT (f(x)) Tj ET", "f(x)"},
		{"comments ignored", "% (hidden) Tj\nBT (shown) Tj ET", "shown"},
		{"no text", "q 1 0 0 1 0 0 cm Q", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, streamText([]byte(tc.stream)))
		})
	}
}

func buildPackage(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestSpreadsheet_XLSX(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"xl/workbook.xml": `<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
			`<sheets><sheet name="Plan1" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="worksheet" Target="worksheets/data.xml"/></Relationships>`,
		"xl/sharedStrings.xml": `<sst><si><t>Nome</t></si><si><r><t>CPF </t></r><r><t>123.456.789-00</t></r><rPh><t>ignored</t></rPh></si></sst>`,
		"xl/worksheets/data.xml": `<worksheet><sheetData>` +
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1"><v>42</v></c></row>` +
			`<row r="3"><c r="C3" t="s"><v>1</v></c><c r="D3" t="inlineStr"><is><t>inline</t></is></c><c r="E3"/></row>` +
			`</sheetData></worksheet>`,
	})

	units := run(t, "Book.xlsx", evidence.FormatSpreadsheet, data)

	assert.Equal(t, []string{
		"sheet=Plan1;row=1;column=A=Nome",
		"sheet=Plan1;row=1;column=B=42",
		"sheet=Plan1;row=3;column=C=CPF 123.456.789-00",
		"sheet=Plan1;row=3;column=D=inline",
	}, located(units))
}

func TestSpreadsheet_ODS(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"mimetype": "application/vnd.oasis.opendocument.spreadsheet",
		"content.xml": `<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
			`xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">` +
			`<office:body><office:spreadsheet><table:table table:name="Folha">` +
			`<table:table-row><table:table-cell table:number-columns-repeated="2"/><table:table-cell><text:p>ana@example.com</text:p></table:table-cell></table:table-row>` +
			`<table:table-row table:number-rows-repeated="3"><table:table-cell/></table:table-row>` +
			`<table:table-row><table:table-cell><text:p>a<text:s/>b</text:p><text:p>c</text:p></table:table-cell></table:table-row>` +
			`</table:table></office:spreadsheet></office:body></office:document-content>`,
	})

	units := run(t, "Book.ods", evidence.FormatSpreadsheet, data)

	assert.Equal(t, []string{
		"sheet=Folha;row=1;column=C=ana@example.com",
		"sheet=Folha;row=5;column=A=a b\nc",
	}, located(units))
}

func TestSpreadsheet_InflatedMembersHitTheEntryCeiling(t *testing.T) {
	// A highly compressible shared string table that inflates to 8 MiB.
	big := "<sst><si><t>123.456.789-00 " + strings.Repeat("A", 8<<20) + "</t></si></sst>"
	data := buildPackage(t, map[string]string{
		"xl/workbook.xml":          `<workbook><sheets><sheet name="S" r:id="rId1"/></sheets></workbook>`,
		"xl/sharedStrings.xml":     big,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row r="1"><c r="A1" t="s"><v>0</v></c></row></sheetData></worksheet>`,
	})
	require.Less(t, len(data), 1<<20)

	tests := []struct {
		name     string
		limits   archive.Limits
		sentinel error
	}{
		{"byte ceiling", archive.Limits{MaxEntryBytes: 1 << 20, MaxRatio: 1e9}, archive.ErrEntryTooLarge},
		{"ratio ceiling", archive.Limits{MaxEntryBytes: 64 << 20, MaxRatio: 10}, archive.ErrRatioExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, err := tryRunWith(Options{Limits: tt.limits}, "book.xlsx", evidence.FormatSpreadsheet, data)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, perrors.ErrCodeEntryRead, perrors.GetCode(err))
			assert.Empty(t, units)
		})
	}
}

func TestSpreadsheet_NotAZipIsEntryFailure(t *testing.T) {
	_, err := tryRun("Book.xlsx", evidence.FormatSpreadsheet, []byte("plain text"))

	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeEntryRead, perrors.GetCode(err))
}

func TestCellReferences(t *testing.T) {
	row, col, ok := parseCellRef("AB12")
	require.True(t, ok)
	assert.Equal(t, 12, row)
	assert.Equal(t, 28, col)

	_, _, ok = parseCellRef("12")
	assert.False(t, ok)
	_, _, ok = parseCellRef("A")
	assert.False(t, ok)

	assert.Equal(t, "A", columnName(1))
	assert.Equal(t, "Z", columnName(26))
	assert.Equal(t, "AA", columnName(27))
	assert.Equal(t, "AB", columnName(28))
	assert.Equal(t, "", columnName(0))
}

const calendarFile = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1@example.com\r\n" +
	"DTSTAMP:20230101T000000Z\r\n" +
	"SUMMARY:Meeting with ana@example.com\r\n" +
	"DESCRIPTION:CPF 123.456.789-00\\, confirm\r\n" +
	"ATTACH:aGVsbG8=\r\n" +
	"BEGIN:VALARM\r\n" +
	"ACTION:DISPLAY\r\n" +
	"TRIGGER:-PT15M\r\n" +
	"END:VALARM\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestCalendar_PropertiesPerComponent(t *testing.T) {
	units := run(t, "cal/agenda.ics", evidence.FormatCalendar, []byte(calendarFile))

	got := located(units)
	assert.Contains(t, got, "component=VEVENT#1;field=DESCRIPTION=CPF 123.456.789-00, confirm")
	assert.Contains(t, got, "component=VEVENT#1;field=SUMMARY=Meeting with ana@example.com")
	assert.Contains(t, got, "component=VEVENT#1/VALARM#1;field=ACTION=DISPLAY")
	assert.Contains(t, got, "field=PRODID=-//test//EN")
	for _, u := range units {
		assert.NotEqual(t, "ATTACH", u.Locator.Field)
	}
}

func TestCalendar_ComponentsNumberedAcrossCalendars(t *testing.T) {
	second := strings.Replace(calendarFile, "UID:1@example.com", "UID:2@example.com", 1)
	second = strings.Replace(second, "PRODID:-//test//EN", "PRODID:-//other//EN", 1)

	units := run(t, "cal/two.ics", evidence.FormatCalendar, []byte(calendarFile+second))

	got := located(units)
	assert.Contains(t, got, "component=VEVENT#1;field=UID=1@example.com")
	assert.Contains(t, got, "component=VEVENT#2;field=UID=2@example.com")
	assert.Contains(t, got, "component=VEVENT#2/VALARM#1;field=ACTION=DISPLAY")
	assert.Contains(t, got, "field=PRODID=-//test//EN")
	assert.Contains(t, got, "component=VCALENDAR#2;field=PRODID=-//other//EN")

	seen := make(map[string]bool)
	for _, l := range got {
		assert.False(t, seen[l], "duplicate locator %s", l)
		seen[l] = true
	}
}

func TestCalendar_MalformedIsEntryFailure(t *testing.T) {
	_, err := tryRun("bad.ics", evidence.FormatCalendar, []byte("BEGIN:VCALENDAR\r\nnot a property line\r\n"))

	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeEntryRead, perrors.GetCode(err))
}

func TestContact_FieldsPerCard(t *testing.T) {
	data := "BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Ana Souza\r\nEMAIL:ana@example.com\r\nTEL:+55 11 99999-0000\r\nEND:VCARD\r\n" +
		"BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Bruno\r\nEND:VCARD\r\n"

	units := run(t, "contacts.vcf", evidence.FormatContact, []byte(data))

	assert.Equal(t, []string{
		"component=VCARD#1;field=EMAIL=ana@example.com",
		"component=VCARD#1;field=FN=Ana Souza",
		"component=VCARD#1;field=TEL=+55 11 99999-0000",
		"component=VCARD#2;field=FN=Bruno",
	}, located(units))
}

func TestOffice_DOCXParagraphsAndParts(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t>CPF </w:t></w:r><w:r><w:t>123.456.789-00</w:t></w:r></w:p>` +
			`<w:p/>` +
			`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t></w:r><w:del><w:r><w:delText>removed@example.com</w:delText></w:r></w:del></w:p>` +
			`</w:body></w:document>`,
		"word/footer1.xml": `<w:ftr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:p><w:r><w:t>confidential</w:t></w:r></w:p></w:ftr>`,
		"word/styles.xml":  `<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:p><w:r><w:t>not text</w:t></w:r></w:p></w:styles>`,
	})

	units := run(t, "docs/Carta.docx", evidence.FormatOffice, data)

	assert.Equal(t, []string{
		"paragraph=1=CPF 123.456.789-00",
		"paragraph=3=a\tbremoved@example.com",
		"component=footer1;paragraph=1=confidential",
	}, located(units))
	assert.Equal(t, evidence.FormatOffice, units[0].ExtractorKind)
}

func TestOffice_PPTXSlidesInNumericOrder(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text +
			`</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	data := buildPackage(t, map[string]string{
		"ppt/presentation.xml":             `<p:presentation xmlns:p="p"/>`,
		"ppt/slides/slide10.xml":           slide("ten"),
		"ppt/slides/slide2.xml":            slide("two"),
		"ppt/slides/_rels/slide2.xml.rels": `<Relationships/>`,
	})

	units := run(t, "deck.pptx", evidence.FormatOffice, data)

	assert.Equal(t, []string{
		"component=SLIDE#2;paragraph=1=two",
		"component=SLIDE#10;paragraph=1=ten",
	}, located(units))
}

func TestOffice_ODTAndODP(t *testing.T) {
	const ns = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
		`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
		`xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0"`

	odt := buildPackage(t, map[string]string{
		"content.xml": `<office:document-content ` + ns + `><office:body><office:text>` +
			`<text:h text:outline-level="1">Relatório</text:h>` +
			`<text:p>a<text:s text:c="3"/>b<text:line-break/>ana@example.com</text:p>` +
			`</office:text></office:body></office:document-content>`,
	})
	assert.Equal(t, []string{
		"paragraph=1=Relatório",
		"paragraph=2=a   b\nana@example.com",
	}, located(run(t, "r.odt", evidence.FormatOffice, odt)))

	odp := buildPackage(t, map[string]string{
		"content.xml": `<office:document-content ` + ns + `><office:body><office:presentation>` +
			`<draw:page><draw:frame><draw:text-box><text:p>one</text:p><text:p>two</text:p></draw:text-box></draw:frame></draw:page>` +
			`<draw:page><draw:frame><draw:text-box><text:p>three</text:p></draw:text-box></draw:frame></draw:page>` +
			`</office:presentation></office:body></office:document-content>`,
	})
	assert.Equal(t, []string{
		"component=SLIDE#1;paragraph=1=one",
		"component=SLIDE#1;paragraph=2=two",
		"component=SLIDE#2;paragraph=1=three",
	}, located(run(t, "s.odp", evidence.FormatOffice, odp)))
}

func TestOffice_MissingContentIsEntryFailure(t *testing.T) {
	data := buildPackage(t, map[string]string{"word/styles.xml": `<w:styles/>`})

	_, err := tryRun("x.docx", evidence.FormatOffice, data)

	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeEntryRead, perrors.GetCode(err))
}
