package document

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	text, err := Extract("notes.MD", []byte("# Title\nbody"), 0)
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody", text)
}

func TestExtractDropsInvalidUTF8(t *testing.T) {
	text, err := Extract("data.csv", []byte("a,b\xff\n1,2"), 0)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2", text)
}

func TestExtractRejectsUnknownFormats(t *testing.T) {
	for _, name := range []string{"deck.pptx", "sheet.xlsx", "photo.png"} {
		_, err := Extract(name, []byte("PK\x03\x04"), 0)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, name)
	}
}

func TestExtractPDF(t *testing.T) {
	text, err := Extract("paper.PDF", samplePDF("Hello PDF"), 0)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello PDF")
}

func TestExtractPDFTruncatesToBudget(t *testing.T) {
	text, err := Extract("paper.pdf", samplePDF(strings.Repeat("a", 80)), 25)
	require.NoError(t, err)
	assert.Equal(t, 25, utf8.RuneCountInString(text))
}

func TestExtractDOCX(t *testing.T) {
	doc := sampleDOCX(t, `<w:p><w:r><w:t>First</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve">line</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>Second</w:t><w:br/><w:t>line</w:t></w:r></w:p>`)

	text, err := Extract("report.docx", doc, 0)
	require.NoError(t, err)
	assert.Equal(t, "First\tline\nSecond\nline\n", text)
}

func TestExtractDOCXTruncatesToBudget(t *testing.T) {
	doc := sampleDOCX(t, `<w:p><w:r><w:t>`+strings.Repeat("é", DefaultBudget+10)+`</w:t></w:r></w:p>`)

	text, err := Extract("big.docx", doc, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBudget, utf8.RuneCountInString(text))
}

func TestExtractUnreadableBinaryFormats(t *testing.T) {
	for _, name := range []string{"paper.pdf", "report.docx"} {
		_, err := Extract(name, []byte("%PDF-1.7 truncated"), 0)
		assert.ErrorIs(t, err, ErrUnreadable, name)
	}

	missingBody := zipArchive(t, map[string]string{"word/styles.xml": "<w:styles/>"})
	_, err := Extract("report.docx", missingBody, 0)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestExtractEmptyDOCX(t *testing.T) {
	_, err := Extract("blank.docx", sampleDOCX(t, `<w:p/>`), 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestExtractEmpty(t *testing.T) {
	_, err := Extract("empty.txt", []byte(" \n\t"), 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestExtractTruncatesToBudget(t *testing.T) {
	text, err := Extract("big.txt", []byte(strings.Repeat("x", DefaultBudget+500)), 0)
	require.NoError(t, err)
	assert.Len(t, text, DefaultBudget)
}

func TestTruncateCountsCharacters(t *testing.T) {
	s := strings.Repeat("é", 10)
	out := Truncate(s, 4)
	assert.Equal(t, 4, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))

	assert.Equal(t, "short", Truncate("short", 10))
}

// samplePDF builds a single-page PDF that shows text in Helvetica.
func samplePDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
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

func sampleDOCX(t *testing.T, body string) []byte {
	t.Helper()
	return zipArchive(t, map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body + `</w:body></w:document>`,
	})
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
