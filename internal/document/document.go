// Package document extracts plain text from uploaded files for use as chat context.
package document

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultBudget is the maximum number of characters kept from a document.
const DefaultBudget = 40000

var (
	// ErrUnsupportedFormat is returned for extensions with no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmpty is returned when a file yields no text.
	ErrEmpty = errors.New("document contains no text")
	// ErrUnreadable is returned when a PDF or DOCX file cannot be parsed.
	ErrUnreadable = errors.New("document could not be read")
)

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
	".log":  true,
	"":      true,
}

// Extract returns the text content of an upload, truncated to budget
// characters. PDF and DOCX files are parsed; other accepted extensions are
// read as text. Invalid UTF-8 sequences are dropped.
func Extract(filename string, data []byte, budget int) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var raw string
	switch {
	case ext == ".pdf":
		text, err := extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		raw = text
	case ext == ".docx":
		text, err := extractDOCX(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		raw = text
	case textExtensions[ext]:
		raw = string(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	text := strings.ToValidUTF8(raw, "")
	text = strings.ReplaceAll(text, "\x00", "")
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return Truncate(text, budget), nil
}

// Truncate cuts s to at most budget characters. A non-positive budget uses DefaultBudget.
func Truncate(s string, budget int) string {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	n := 0
	for i := range s {
		if n == budget {
			return s[:i]
		}
		n++
	}
	return s
}
