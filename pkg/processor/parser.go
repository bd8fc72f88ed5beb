package processor

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/xiaowei/internal/models"
)

const (
	FileTypeText     = "text/plain"
	FileTypeMarkdown = "text/markdown"
	FileTypeHTML     = "text/html"
	FileTypePDF      = "application/pdf"
	FileTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Binary formats are accepted but not parsed; their content is a placeholder
// until real extractors are wired in.
const (
	pdfPlaceholder  = "PDF content would be extracted here using a PDF parser"
	docxPlaceholder = "DOCX content would be extracted here using a DOCX parser"
)

// ParseDocument decodes a base64 upload into plain text according to its MIME type.
func ParseDocument(fileContent, fileType string) (string, error) {
	switch fileType {
	case FileTypePDF:
		return pdfPlaceholder, nil
	case FileTypeDOCX:
		return docxPlaceholder, nil
	}

	raw, err := base64.StdEncoding.DecodeString(fileContent)
	if err != nil {
		if fileType == FileTypeText || fileType == FileTypeMarkdown || fileType == FileTypeHTML {
			return "", fmt.Errorf("%w: invalid base64 content: %v", models.ErrInvalidInput, err)
		}
		return "", fmt.Errorf("%w: %s", models.ErrUnsupportedType, fileType)
	}

	if fileType == FileTypeHTML {
		return extractHTMLText(string(raw))
	}

	if !utf8.Valid(raw) {
		return strings.ToValidUTF8(string(raw), ""), nil
	}
	return string(raw), nil
}

func extractHTMLText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", models.ErrInvalidInput, err)
	}

	doc.Find("script, style, nav, footer").Remove()

	for _, selector := range []string{"main", "article", "body"} {
		if selected := doc.Find(selector); selected.Length() > 0 {
			return strings.Join(strings.Fields(selected.Text()), " "), nil
		}
	}
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// EstimateTokenCount approximates tokens as two CJK characters or four other
// characters per token.
func EstimateTokenCount(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fa5 {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Ceil(float64(cjk)/2 + float64(other)/4))
}
