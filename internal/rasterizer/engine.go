package rasterizer

import (
	"errors"
	"image"

	"github.com/gen2brain/go-fitz"
)

// Engine decodes PDF bytes into a document that can be rendered page by page.
type Engine interface {
	Decode(src []byte) (Document, error)
}

// Document is an open PDF. Page numbers are zero-based.
type Document interface {
	NumPage() int
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

// pointsPerInch is the PDF user-space unit; scale 1.0 renders one pixel per point.
const pointsPerInch = 72.0

// FitzEngine renders through go-fitz (MuPDF, embedded).
type FitzEngine struct{}

// NewFitzEngine creates a go-fitz backed engine.
func NewFitzEngine() *FitzEngine {
	return &FitzEngine{}
}

// Decode opens src in memory.
func (FitzEngine) Decode(src []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(src)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, &DecodeError{Reason: "password required", Err: err}
		}
		return nil, &DecodeError{Reason: "open document", Err: err}
	}
	return fitzDoc{doc}, nil
}

type fitzDoc struct{ *fitz.Document }

func (d fitzDoc) Render(page int, scale float64) (image.Image, error) {
	return d.Document.ImageDPI(page, pointsPerInch*scale)
}
