package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNotPDF = errors.New("input is not a PDF document")

var pdfMagic = []byte("%PDF-")

// Page is the plain text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Extractor reads PDFs with ledongthuc/pdf.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// ExtractPages reads the entire content of r and returns the plain text of each
// page that has a content stream. Pages whose text cannot be decoded are skipped.
func (e *Extractor) ExtractPages(r io.Reader) ([]Page, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf failed: %w", err)
	}
	if !IsPDF(b) {
		return nil, ErrNotPDF
	}

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	pages := make([]Page, 0, reader.NumPage())
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// IsPDF reports whether b starts with the PDF header.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(b, pdfMagic)
}

// JoinText concatenates page texts separated by blank lines.
func JoinText(pages []Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}
