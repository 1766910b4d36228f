// Package ingestion turns brochures into tagged, embedded chunks in the vector index and property graph.
package ingestion

import (
	"path/filepath"
	"sort"
	"strings"
)

// DocumentFormat is how a brochure file is decoded before chunking.
type DocumentFormat string

const (
	FormatUnknown  DocumentFormat = ""
	FormatMarkdown DocumentFormat = "markdown"
	FormatPDF      DocumentFormat = "pdf"
	FormatText     DocumentFormat = "text"
)

var formatsByExtension = map[string]DocumentFormat{
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".pdf":      FormatPDF,
	".txt":      FormatText,
	".text":     FormatText,
}

// Supported reports whether brochures of this format can be ingested.
func (f DocumentFormat) Supported() bool {
	return f != FormatUnknown
}

// DetectFormat maps a file name to its format by extension, case-insensitively.
func DetectFormat(path string) DocumentFormat {
	return formatsByExtension[strings.ToLower(filepath.Ext(path))]
}

// SupportedExtensions lists the extensions a directory sweep picks up.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formatsByExtension))
	for ext := range formatsByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
