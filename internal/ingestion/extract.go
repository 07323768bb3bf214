package ingestion

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText combines a document's inline raw text with the text pulled from
// an optional uploaded file. HTML files are stripped to their visible text;
// anything else is treated as plain UTF-8 with invalid bytes dropped.
func ExtractText(rawText string, fileData []byte, fileName string) (string, error) {
	raw := strings.TrimSpace(rawText)

	fileText := ""
	if len(fileData) > 0 {
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".html", ".htm":
			text, err := extractHTML(fileData)
			if err != nil {
				return "", fmt.Errorf("failed to parse HTML file: %w", err)
			}
			fileText = text
		default:
			fileText = decodePlainText(fileData)
		}
	}

	parts := make([]string, 0, 2)
	for _, p := range []string{raw, fileText} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
	})
	if sb.Len() == 0 {
		sb.WriteString(doc.Text())
	}
	return sb.String(), nil
}

func decodePlainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
