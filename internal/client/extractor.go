package client

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// TextExtractor turns uploaded document bytes into plain text. The parsing
// itself lives in an external collaborator; this is the consumed contract.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyContent      = errors.New("document contains no extractable text")
)

// PlainTextExtractor handles text-like uploads directly. Binary formats
// (PDF, DOCX) need a dedicated parsing collaborator and are rejected here.
type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) Extract(_ context.Context, data []byte, mimeType string) (string, error) {
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(strings.ToLower(base))

	switch {
	case strings.HasPrefix(base, "text/"):
	case base == "application/json" || base == "application/xml":
	case base == "" && utf8.Valid(data):
	default:
		return "", ErrUnsupportedFormat
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrEmptyContent
	}
	if !utf8.ValidString(text) {
		return "", ErrUnsupportedFormat
	}
	return text, nil
}
