package rasterizer_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/local/flipbook/internal/rasterizer"
)

// The intake fixtures are real PDFs with 200x300pt media boxes.
func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "intake", "testdata", name))
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", name, err)
	}
	return data
}

func TestFitzEngine_Rasterize(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		workers    int
		wantSource int
		wantTotal  int
	}{
		{"one page padded", "pages1.pdf", 1, 1, 2},
		{"three pages padded", "pages3.pdf", 1, 3, 4},
		{"three pages parallel", "pages3.pdf", 2, 3, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRasterizer(t, rasterizer.NewFitzEngine(), rasterizer.Options{
				Scale:   1.5,
				PadOdd:  true,
				Workers: tt.workers,
			})

			set, err := r.Rasterize(context.Background(), readFixture(t, tt.file))
			if err != nil {
				t.Fatalf("Rasterize() error = %v", err)
			}
			if set.SourcePages != tt.wantSource {
				t.Errorf("SourcePages = %d, want %d", set.SourcePages, tt.wantSource)
			}
			if set.TotalCount() != tt.wantTotal {
				t.Fatalf("TotalCount() = %d, want %d", set.TotalCount(), tt.wantTotal)
			}
			if !set.Padded {
				t.Error("Padded = false, want true")
			}
			if len(set.Failed) != 0 {
				t.Errorf("Failed = %v, want none", set.Failed)
			}

			for i, p := range set.Pages {
				if p.Index != i {
					t.Errorf("Pages[%d].Index = %d, want %d", i, p.Index, i)
				}
				if i >= tt.wantSource {
					continue
				}
				if p.Blank {
					t.Errorf("Pages[%d].Blank = true, want rendered page", i)
				}
				cfg, format, err := image.DecodeConfig(bytes.NewReader(p.Data))
				if err != nil {
					t.Fatalf("Pages[%d] DecodeConfig() error = %v", i, err)
				}
				if format != "png" {
					t.Errorf("Pages[%d] format = %q, want png", i, format)
				}
				if cfg.Width != 300 || cfg.Height != 450 {
					t.Errorf("Pages[%d] image = %dx%d, want 300x450", i, cfg.Width, cfg.Height)
				}
				if p.Width != cfg.Width || p.Height != cfg.Height {
					t.Errorf("Pages[%d] reported %dx%d, encoded %dx%d", i, p.Width, p.Height, cfg.Width, cfg.Height)
				}
			}

			last := set.Pages[len(set.Pages)-1]
			if !last.Blank {
				t.Error("trailing page Blank = false, want padding page")
			}
		})
	}
}

func TestFitzEngine_CorruptSource(t *testing.T) {
	r := newRasterizer(t, rasterizer.NewFitzEngine(), rasterizer.Options{PadOdd: true})

	_, err := r.Rasterize(context.Background(), []byte("%PDF-1.4 garbage"))
	if err == nil {
		t.Fatal("Rasterize() error = nil, want decode error")
	}
	var de *rasterizer.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Rasterize() error = %T %v, want *DecodeError", err, err)
	}
}

func TestFitzEngine_PageCount(t *testing.T) {
	doc, err := rasterizer.NewFitzEngine().Decode(readFixture(t, "pages3.pdf"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	defer doc.Close()

	if n := doc.NumPage(); n != 3 {
		t.Errorf("NumPage() = %d, want 3", n)
	}
	img, err := doc.Render(0, 1.0)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 300 {
		t.Errorf("Render(0, 1.0) bounds = %dx%d, want 200x300", b.Dx(), b.Dy())
	}
}
