package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrTextExtraction is the parent of every extraction failure.
	ErrTextExtraction = errors.New("text extraction failed")

	ErrCorrupted   = fmt.Errorf("%w: corrupted document structure", ErrTextExtraction)
	ErrEncrypted   = fmt.Errorf("%w: document is encrypted", ErrTextExtraction)
	ErrNoTextLayer = fmt.Errorf("%w: document has no text layer", ErrTextExtraction)

	errNoPages         = errors.New("document has no pages")
	errUnreadablePages = errors.New("no page could be read")
)

// Extractor turns a PDF into plain text using MuPDF.
type Extractor struct{}

// NewExtractor creates a new Extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText returns the text of every page, one page per line, trimmed.
func (e *Extractor) ExtractText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return "", ErrEncrypted
		}
		return "", diagnose(data, err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages <= 0 {
		return "", diagnose(data, errNoPages)
	}

	var (
		text   strings.Builder
		failed int
	)
	for i := 0; i < pages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			slog.Warn("Failed to extract page text", "page", i+1, "error", err)
			failed++
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	if failed == pages {
		return "", diagnose(data, errUnreadablePages)
	}

	result := strings.TrimSpace(text.String())
	if result == "" {
		return "", ErrNoTextLayer
	}
	return result, nil
}

// diagnose asks pdfcpu why MuPDF could not open the document, telling an
// encrypted file apart from a broken one. pdfcpu panics on some truncated
// inputs; those are reported as corrupted.
func diagnose(data []byte, openErr error) (result error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("PDF validation panicked", "panic", r)
			result = fmt.Errorf("%w (%v)", ErrCorrupted, openErr)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	err := api.Validate(bytes.NewReader(data), conf)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
			return ErrEncrypted
		}
	}
	return fmt.Errorf("%w (%v)", ErrCorrupted, openErr)
}
