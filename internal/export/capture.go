package export

import (
	"context"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/invoicecraft/studio/internal/invoice"
)

// CaptureRequest names what to rasterize.
type CaptureRequest struct {
	Invoice invoice.Invoice
	Options Options
}

// Capturer rasterizes the rendered invoice preview at Options.Scale.
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) (image.Image, error)
}

// ImageCapturer serves an already rendered raster, oversampled by the
// requested scale. A nil Source behaves like a missing preview element.
type ImageCapturer struct {
	Source image.Image
}

func (c ImageCapturer) Capture(ctx context.Context, req CaptureRequest) (image.Image, error) {
	opts := req.Options.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Source == nil || c.Source.Bounds().Empty() {
		return nil, &ElementNotFoundError{Selector: opts.Selector}
	}
	return rasterize(c.Source, opts.Scale, opts.Background), nil
}

// rasterize scales src by factor and composites it over bg. Transparent
// regions of the source end up as the background colour.
func rasterize(src image.Image, factor float64, bg color.Color) *image.RGBA {
	b := src.Bounds()
	w := int(math.Round(float64(b.Dx()) * factor))
	h := int(math.Round(float64(b.Dy()) * factor))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// flatten composites src over bg without scaling.
func flatten(src image.Image, bg color.Color) *image.RGBA {
	return rasterize(src, 1, bg)
}
