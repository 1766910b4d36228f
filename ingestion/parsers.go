package ingestion

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ParsedDocument is the plain text of one brochure.
type ParsedDocument struct {
	Title string
	Text  string
}

// ParseDocument extracts text from a payload of the given format.
func ParseDocument(path string, format DocumentFormat, data []byte) (*ParsedDocument, error) {
	var (
		content string
		err     error
	)
	switch format {
	case FormatPDF:
		content, err = ExtractPDFText(data)
		if err != nil {
			return nil, err
		}
	case FormatMarkdown, FormatText:
		content = normalizePlainText(string(data))
	default:
		return nil, fmt.Errorf("unsupported document format for %s (want one of %s)", path, strings.Join(SupportedExtensions(), ", "))
	}

	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title := ""
	if format == FormatMarkdown {
		title = ExtractTitle(content, "")
	}
	if title == "" {
		title = firstNonEmptyLine(content)
	}
	if title == "" {
		title = fallback
	}

	return &ParsedDocument{Title: title, Text: content}, nil
}

// ExtractPDFText reads the text layer of a PDF. Pages whose content stream
// cannot be decoded are skipped when the whole-document reader fails.
func ExtractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err == nil {
		buf := &bytes.Buffer{}
		if _, copyErr := io.Copy(buf, plain); copyErr == nil {
			return normalizePlainText(buf.String()), nil
		}
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	if builder.Len() == 0 && err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return normalizePlainText(builder.String()), nil
}

// ExtractTitle returns the first markdown heading, or fallback.
func ExtractTitle(content, fallback string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return fallback
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func firstNonEmptyLine(content string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
