package rasterizer

import (
	"fmt"
	"strings"
)

// Format is the encoding used for page images.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// ParseFormat accepts png, jpg or jpeg (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	default:
		return "", fmt.Errorf("%w: format must be 'png' or 'jpeg'", ErrInvalidOption)
	}
}

// MimeType returns the content type for the format.
func (f Format) MimeType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Policy decides what happens when one page fails to render.
type Policy string

const (
	// PolicyAbort ends the whole load on the first failing page.
	PolicyAbort Policy = "abort"
	// PolicySkip substitutes a blank placeholder and keeps going.
	PolicySkip Policy = "skip"
)

// Options controls rasterization output.
type Options struct {
	Scale     float64   `json:"scale"`
	Format    Format    `json:"format"`
	Quality   int       `json:"quality"`
	ColorMode ColorMode `json:"color_mode"`
	PadOdd    bool      `json:"pad_odd"`
	PadWidth  int       `json:"pad_width"`
	PadHeight int       `json:"pad_height"`
	Policy    Policy    `json:"policy"`
	Workers   int       `json:"workers"`
}

// Defaults used by Validate for unset fields.
const (
	DefaultScale     = 1.5
	DefaultQuality   = 90
	DefaultPadWidth  = 800
	DefaultPadHeight = 1200
	MaxScale         = 4.0
	MaxWorkers       = 16
)

// DefaultOptions returns options with every default applied.
func DefaultOptions() Options {
	o := Options{}
	_ = o.Validate()
	return o
}

// Validate applies defaults to unset fields and checks ranges.
func (o *Options) Validate() error {
	if o.Scale == 0 {
		o.Scale = DefaultScale
	} else if o.Scale < 0 || o.Scale > MaxScale {
		return fmt.Errorf("%w: scale must be between 0 and %.1f", ErrInvalidOption, MaxScale)
	}

	if o.Format == "" {
		o.Format = PNG
	} else {
		f, err := ParseFormat(string(o.Format))
		if err != nil {
			return err
		}
		o.Format = f
	}

	if o.Quality == 0 {
		o.Quality = DefaultQuality
	} else if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 1 and 100", ErrInvalidOption)
	}

	switch o.ColorMode {
	case "":
		o.ColorMode = ColorRGB
	case ColorRGB, ColorGray:
	default:
		return fmt.Errorf("%w: color mode must be 'rgb' or 'gray'", ErrInvalidOption)
	}

	if o.PadWidth == 0 {
		o.PadWidth = DefaultPadWidth
	}
	if o.PadHeight == 0 {
		o.PadHeight = DefaultPadHeight
	}
	if o.PadWidth < 0 || o.PadHeight < 0 {
		return fmt.Errorf("%w: pad size must be positive", ErrInvalidOption)
	}

	switch o.Policy {
	case "":
		o.Policy = PolicyAbort
	case PolicyAbort, PolicySkip:
	default:
		return fmt.Errorf("%w: policy must be 'abort' or 'skip'", ErrInvalidOption)
	}

	if o.Workers <= 0 {
		o.Workers = 1
	} else if o.Workers > MaxWorkers {
		return fmt.Errorf("%w: workers must be at most %d", ErrInvalidOption, MaxWorkers)
	}

	return nil
}
