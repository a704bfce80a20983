package pdfdoc

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"
)

const (
	exportMarginX   = 20.0
	exportTopY      = 20.0
	exportBottomY   = 280.0
	exportLineWidth = 170.0
	exportLineStep  = 7.0
	exportFontSize  = 11
	exportTitleSize = 14

	exportFontFamily = "report"
)

// Exporter lays out plain text lines on A4 pages.
type Exporter struct {
	fontPath string
}

// NewExporter creates an Exporter. fontPath names a UTF-8 TrueType font used
// for every glyph; empty falls back to core Helvetica, which only covers
// the cp1252 range.
func NewExporter(fontPath string) *Exporter {
	return &Exporter{fontPath: fontPath}
}

// Unicode reports whether the exporter embeds a UTF-8 font. Without one,
// Cyrillic text is not rendered.
func (e *Exporter) Unicode() bool {
	return e.fontPath != ""
}

// RenderText returns the PDF bytes for title and lines. Long lines are
// wrapped; a new page starts when the cursor passes the bottom margin.
func (e *Exporter) RenderText(title string, lines []string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")

	family := "Helvetica"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	split := func(text string) []string {
		var out []string
		for _, part := range pdf.SplitLines([]byte(tr(text)), exportLineWidth) {
			out = append(out, string(part))
		}
		return out
	}
	if e.fontPath != "" {
		pdf.AddUTF8Font(exportFontFamily, "", e.fontPath)
		pdf.AddUTF8Font(exportFontFamily, "B", e.fontPath)
		family = exportFontFamily
		tr = func(s string) string { return s }
		split = func(text string) []string {
			return pdf.SplitText(text, exportLineWidth)
		}
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("loading font %s: %w", e.fontPath, err)
	}

	pdf.AddPage()

	y := exportTopY
	if title != "" {
		pdf.SetFont(family, "B", exportTitleSize)
		pdf.Text(exportMarginX, y, tr(title))
		y += exportLineStep * 2
	}

	pdf.SetFont(family, "", exportFontSize)
	for _, line := range lines {
		wrapped := split(line)
		if len(wrapped) == 0 {
			wrapped = []string{""}
		}
		for _, part := range wrapped {
			if y > exportBottomY {
				pdf.AddPage()
				y = exportTopY
			}
			pdf.Text(exportMarginX, y, part)
			y += exportLineStep
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderText renders with the core Helvetica font.
func RenderText(title string, lines []string) ([]byte, error) {
	return NewExporter("").RenderText(title, lines)
}
