package intake

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// Detect sniffs data by magic bytes, ignoring any filename or declared type.
func Detect(data []byte) *mimetype.MIME {
	m := mimetype.Detect(data)
	log.Debug().Str("mime", m.String()).Str("ext", m.Extension()).Int("bytes", len(data)).Msg("detected file type")
	return m
}

// IsPDF reports whether data starts like a PDF document.
func IsPDF(data []byte) bool {
	return Detect(data).Is(pdfMIME)
}

// ImageType returns the image/* type of data, walking up the mimetype
// hierarchy, or false when data is not an image.
func ImageType(data []byte) (string, bool) {
	for m := Detect(data); m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return baseType(m.String()), true
		}
	}
	return "", false
}

// baseType drops parameters such as "; charset=utf-8".
func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}
