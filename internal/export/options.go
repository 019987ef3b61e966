// Package export turns a rendered invoice into a paginated PDF (and a UBL XML
// rendition). Capture produces an oversampled raster of the preview element,
// Paginate slices it into fixed-size pages and the encoder places the same
// image once per page at a negative vertical offset.
package export

import (
	"errors"
	"fmt"
	"image/color"
)

// PageGeometry is a page size in millimetres.
type PageGeometry struct {
	Width  float64 `json:"width" toml:"width"`
	Height float64 `json:"height" toml:"height"`
}

// A4 portrait.
var A4 = PageGeometry{Width: 210, Height: 297}

const DefaultSelector = "#invoice-preview"

// Options control capture. The zero value of each field falls back to the
// defaults from DefaultOptions.
type Options struct {
	Page             PageGeometry
	Scale            float64
	Background       color.Color
	AllowCrossOrigin bool
	Selector         string
}

func DefaultOptions() Options {
	return Options{
		Page:             A4,
		Scale:            2,
		Background:       color.White,
		AllowCrossOrigin: true,
		Selector:         DefaultSelector,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Page.Width <= 0 || o.Page.Height <= 0 {
		o.Page = def.Page
	}
	if o.Scale <= 0 {
		o.Scale = def.Scale
	}
	if o.Background == nil {
		o.Background = def.Background
	}
	if o.Selector == "" {
		o.Selector = def.Selector
	}
	return o
}

var (
	ErrElementNotFound = errors.New("capture target element not found")
	ErrCanvasRender    = errors.New("canvas render failed")
)

// ElementNotFoundError reports that the capture target is missing.
type ElementNotFoundError struct {
	Selector string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrElementNotFound, e.Selector)
}

func (e *ElementNotFoundError) Is(target error) bool { return target == ErrElementNotFound }

// CanvasRenderError reports a rasterization failure, for example a
// cross-origin image in a document captured without cross-origin access.
type CanvasRenderError struct {
	Reason string
	Err    error
}

func (e *CanvasRenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCanvasRender, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrCanvasRender, e.Reason)
}

func (e *CanvasRenderError) Is(target error) bool { return target == ErrCanvasRender }

func (e *CanvasRenderError) Unwrap() error { return e.Err }
