// Package rasterizertest provides an in-memory rasterizer.Engine for tests.
package rasterizertest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/local/flipbook/internal/rasterizer"
)

// ErrRender is returned for pages listed in Engine.FailPages.
var ErrRender = errors.New("fake render failure")

const header = "%PDF-fake pages="

// Source returns bytes the fake engine decodes as a document of n pages.
func Source(n int) []byte {
	return []byte(fmt.Sprintf("%s%d\n", header, n))
}

// Engine decodes sources built by Source. Page i renders as a solid image
// of (Width+i) x Height so tests can check ordering from dimensions.
type Engine struct {
	Width     int
	Height    int
	FailPages map[int]bool
	DecodeErr error
	// Wait, when set, runs before each page render with the document's
	// page count. Tests use it to hold a load in flight.
	Wait func(pages int)

	mu      sync.Mutex
	decodes int
}

// Decodes reports how many documents were opened.
func (e *Engine) Decodes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decodes
}

// Decode implements rasterizer.Engine.
func (e *Engine) Decode(src []byte) (rasterizer.Document, error) {
	if e.DecodeErr != nil {
		return nil, e.DecodeErr
	}
	if !bytes.HasPrefix(src, []byte(header)) {
		return nil, errors.New("not a fake pdf")
	}
	var n int
	if _, err := fmt.Sscanf(string(src[len(header):]), "%d", &n); err != nil {
		return nil, fmt.Errorf("bad fake header: %w", err)
	}

	e.mu.Lock()
	e.decodes++
	e.mu.Unlock()

	w, h := e.Width, e.Height
	if w == 0 {
		w = 10
	}
	if h == 0 {
		h = 20
	}
	return &document{engine: e, pages: n, width: w, height: h}, nil
}

type document struct {
	engine *Engine
	pages  int
	width  int
	height int
}

func (d *document) NumPage() int { return d.pages }

func (d *document) Render(page int, scale float64) (image.Image, error) {
	if d.engine.Wait != nil {
		d.engine.Wait(d.pages)
	}
	if d.engine.FailPages[page] {
		return nil, ErrRender
	}
	if page < 0 || page >= d.pages {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	img := image.NewRGBA(image.Rect(0, 0, d.width+page, d.height))
	shade := uint8(page * 16)
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: shade, G: 0, B: 0, A: 255}), image.Point{}, draw.Src)
	return img, nil
}

func (d *document) Close() error { return nil }
