package extract

import (
	"errors"
	"testing"
)

func TestExtractPlainText(t *testing.T) {
	e := NewTextExtractor()
	got, err := e.Extract([]byte("  Title\n\nBody   text \x00here. "), "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "Title Body text here."
	if got != want {
		t.Fatalf("extract = %q, want %q", got, want)
	}
}

func TestExtractHTML(t *testing.T) {
	e := NewTextExtractor()
	raw := `<html><head><style>p{color:red}</style></head><body><p>First paragraph.</p><script>alert(1)</script><div>Second block.</div></body></html>`
	got, err := e.Extract([]byte(raw), "text/html")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "First paragraph. Second block."
	if got != want {
		t.Fatalf("extract = %q, want %q", got, want)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := NewTextExtractor()
	_, err := e.Extract([]byte{0x00, 0x01}, "application/octet-stream")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := e.Extract(nil, ""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("empty content type: err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractEmptyResult(t *testing.T) {
	e := NewTextExtractor()
	_, err := e.Extract([]byte("   \n\t "), "text/plain")
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrEmptyResult", err)
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	e := NewTextExtractor()
	_, err := e.Extract([]byte("not a pdf at all"), "application/pdf")
	if !errors.Is(err, ErrCorruptInput) {
		t.Fatalf("err = %v, want ErrCorruptInput", err)
	}
}
