package rasterizer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
)

// encodeImage converts img to the configured color mode and encodes it.
func encodeImage(img image.Image, opts Options) ([]byte, error) {
	final := img
	if opts.ColorMode == ColorGray {
		bounds := img.Bounds()
		grayImg := image.NewGray(bounds)
		draw.Draw(grayImg, bounds, img, bounds.Min, draw.Src)
		final = grayImg
	}

	var buf bytes.Buffer
	switch opts.Format {
	case JPEG:
		if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: opts.Quality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
	default:
		if err := png.Encode(&buf, final); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// blankImage returns an opaque white w x h image.
func blankImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// blankPage builds a white PageImage at index.
func blankPage(index, w, h int, opts Options) (PageImage, error) {
	data, err := encodeImage(blankImage(w, h), opts)
	if err != nil {
		return PageImage{}, err
	}
	return PageImage{
		Index:    index,
		Width:    w,
		Height:   h,
		MimeType: opts.Format.MimeType(),
		Blank:    true,
		Data:     data,
	}, nil
}

// DataURI builds a self-contained browser image source.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
