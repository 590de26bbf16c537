// Package codec turns user uploads into message content the chat models accept.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/archofall1/ai-ap/internal/models"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DeclaredMediaType is the media type stamped on every encoded upload.
const DeclaredMediaType = "image/jpeg"

const (
	DefaultMaxDim  = 800
	DefaultQuality = 85
)

var ErrUndecodableImage = errors.New("image could not be decoded")

var allowedTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// Options controls Prepare.
type Options struct {
	Downscale bool
	MaxDim    int
	Quality   int
}

// Encode returns a base64 data URI for the image bytes. The bytes are not
// checked against the declared type.
func Encode(image []byte) string {
	return "data:" + DeclaredMediaType + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// BuildUserContent wraps text and an optional image into user content. The
// image part comes first.
func BuildUserContent(text string, image []byte) models.Content {
	if len(image) == 0 {
		return models.Text(text)
	}
	return models.Parts(
		models.ImagePart(Encode(image)),
		models.TextPart(text),
	)
}

// Downscale fits the image inside maxDim x maxDim keeping its aspect ratio and
// re-encodes it as JPEG. Images already within bounds are re-encoded too.
func Downscale(image []byte, maxDim, quality int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDim
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	img, err := imaging.Decode(bytes.NewReader(image), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > maxDim || bounds.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Prepare optionally downscales the image, then builds the user content.
func Prepare(text string, image []byte, opts Options) (models.Content, error) {
	if len(image) > 0 && opts.Downscale {
		scaled, err := Downscale(image, opts.MaxDim, opts.Quality)
		if err != nil {
			return models.Content{}, err
		}
		image = scaled
	}
	return BuildUserContent(text, image), nil
}

// DetectMediaType sniffs the upload bytes.
func DetectMediaType(data []byte) string {
	return http.DetectContentType(data)
}

// AllowedMediaType reports whether uploads of type ct are accepted.
func AllowedMediaType(ct string) bool {
	_, ok := allowedTypes[ct]
	return ok
}
