package flipbook

import (
	"fmt"
	"strings"
)

// Effect is the page turn animation the widget plays.
type Effect string

const (
	EffectPeel  Effect = "peel"
	EffectSlide Effect = "slide"
	EffectCard  Effect = "card"
)

// Background presets offered by the editor.
var Backgrounds = map[string]string{
	"white":      "#ffffff",
	"cream":      "#f8f6f3",
	"light-gray": "#f5f5f5",
	"dark":       "#1a1a1a",
}

// Appearance is how the widget should present the flipbook.
type Appearance struct {
	Background string `json:"background"`
	Effect     Effect `json:"effect"`
}

// DefaultAppearance is white with the peel effect.
func DefaultAppearance() Appearance {
	return Appearance{Background: Backgrounds["white"], Effect: EffectPeel}
}

// Logo is an image shown alongside the flipbook.
type Logo struct {
	Data     []byte
	MimeType string
}

// ParseBackground accepts a preset name or a #rgb / #rrggbb color and
// returns the normalized lowercase #rrggbb form.
func ParseBackground(s string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if hex, ok := Backgrounds[v]; ok {
		return hex, nil
	}
	if !strings.HasPrefix(v, "#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	digits := v[1:]
	for _, r := range digits {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
	}
	switch len(digits) {
	case 6:
		return v, nil
	case 3:
		return "#" + string([]byte{
			digits[0], digits[0],
			digits[1], digits[1],
			digits[2], digits[2],
		}), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
}

// ParseEffect accepts peel, slide or card; empty selects peel.
func ParseEffect(s string) (Effect, error) {
	switch e := Effect(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return EffectPeel, nil
	case EffectPeel, EffectSlide, EffectCard:
		return e, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEffect, s)
	}
}
