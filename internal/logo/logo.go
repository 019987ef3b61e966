// Package logo prepares uploaded company logos for embedding in an invoice
// and removes their background on request.
package logo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/invoicecraft/studio/internal/apperr"
)

const DefaultMaxDimension = 1024

// Logo is a prepared image ready to be stored on Invoice.CompanyLogo.
type Logo struct {
	DataURL string `json:"dataUrl"`
	MIME    string `json:"mime"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Resized bool   `json:"resized"`
}

// Prepare checks that data is an image and returns it as a data URL. Raster
// images larger than maxDim on either side are scaled down and re-encoded
// as PNG. Vector images pass through untouched.
func Prepare(data []byte, maxDim int) (Logo, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	if len(data) == 0 {
		return Logo{}, apperr.NewValidation("logo.Prepare", "empty upload",
			apperr.FieldError{Field: "logo", Message: "no file content"})
	}
	mt := mimetype.Detect(data)
	mime := mt.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") {
		return Logo{}, apperr.NewValidation("logo.Prepare", "invalid file type",
			apperr.FieldError{Field: "logo", Message: fmt.Sprintf("please upload an image file, got %s", mime)})
	}
	if mime == "image/svg+xml" {
		return Logo{DataURL: DataURL(mime, data), MIME: mime}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Logo{}, apperr.NewValidation("logo.Prepare", "unreadable image",
			apperr.FieldError{Field: "logo", Message: err.Error()})
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return Logo{DataURL: DataURL(mime, data), MIME: mime, Width: b.Dx(), Height: b.Dy()}, nil
	}

	resized := resize(img, maxDim)
	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return Logo{}, fmt.Errorf("encode resized logo: %w", err)
	}
	rb := resized.Bounds()
	return Logo{
		DataURL: DataURL("image/png", buf.Bytes()),
		MIME:    "image/png",
		Width:   rb.Dx(),
		Height:  rb.Dy(),
		Resized: true,
	}, nil
}

func resize(img image.Image, maxDim int) *image.RGBA {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	var newWidth, newHeight int
	if width > height {
		newWidth = maxDim
		newHeight = int(float64(height) * float64(maxDim) / float64(width))
	} else {
		newHeight = maxDim
		newWidth = int(float64(width) * float64(maxDim) / float64(height))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

var ErrNotDataURL = errors.New("not a base64 data URL")

// ParseDataURL decodes a base64 data URL into its MIME type and bytes.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return mime, data, nil
}
