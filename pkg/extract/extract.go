package extract

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// Extraction errors. EmptyResult means the file parsed fine but carried no
// text, which the pipeline treats as a processing failure rather than a crash.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptInput      = errors.New("document cannot be parsed")
	ErrEmptyResult       = errors.New("no text extracted")
)

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	Extract(data []byte, contentType string) (string, error)
}

// TextExtractor handles PDF, HTML, and plain-text sources.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract dispatches on the declared content type and returns the document's
// text in source order.
func (e *TextExtractor) Extract(data []byte, contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: bad content type %q", ErrUnsupportedFormat, contentType)
	}
	var text string
	switch {
	case mediaType == "application/pdf":
		text, err = pdfText(data)
	case mediaType == "text/html":
		text, err = htmlText(data)
	case strings.HasPrefix(mediaType, "text/"):
		text, err = plainText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w from %s document", ErrEmptyResult, mediaType)
	}
	return text, nil
}

func plainText(data []byte) (string, error) {
	return normalizeText(string(data)), nil
}

// normalizeText strips NUL bytes and invalid UTF-8 and collapses runs of
// whitespace within a block while keeping blocks separated.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}
