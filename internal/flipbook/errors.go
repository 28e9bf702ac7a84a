package flipbook

import "errors"

var (
	ErrNotFound      = errors.New("flipbook not found")
	ErrSuperseded    = errors.New("load superseded by a newer load")
	ErrInvalidColor  = errors.New("invalid background color")
	ErrInvalidEffect = errors.New("invalid flip effect")
	ErrInvalidLogo   = errors.New("invalid logo")
)
