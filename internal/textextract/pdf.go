package textextract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF")

// IsPDF reports whether content starts with the PDF magic header.
func IsPDF(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

// PDF extracts the plain text of a PDF payload, page by page. Pages that
// fail to decode are skipped so one broken page does not lose the rest of
// the document. A positive charLimit truncates the result on a rune
// boundary.
func PDF(content []byte, charLimit int) (text string, err error) {
	if !IsPDF(content) {
		return "", fmt.Errorf("payload is not a pdf (starts with %q)", previewBytes(content))
	}
	// The pdf library panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("decode pdf: %v", r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n\n")
		if charLimit > 0 && sb.Len() >= charLimit {
			break
		}
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return Truncate(out, charLimit), nil
}

func previewBytes(content []byte) string {
	if len(content) > 20 {
		content = content[:20]
	}
	return string(content)
}
