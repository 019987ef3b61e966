package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// previewViewportWidth matches the preview element width in CSS pixels.
const previewViewportWidth = 794

// crossOriginImagesJS counts <img> elements inside the target whose source
// is neither inline nor same-origin. Such images would taint a canvas.
const crossOriginImagesJS = `(function(sel){
  var root = document.querySelector(sel);
  if (!root) { return -1; }
  var n = 0;
  root.querySelectorAll('img').forEach(function(img){
    var src = img.getAttribute('src') || '';
    if (src === '' || src.indexOf('data:') === 0 || src.indexOf('blob:') === 0) { return; }
    try {
      if (new URL(src, location.href).origin !== location.origin) { n++; }
    } catch (e) { n++; }
  });
  return n;
})(%q)`

// ChromeCapturer renders the invoice preview in headless Chromium and
// screenshots the target element at the requested device scale factor.
type ChromeCapturer struct {
	ExecPath string
	// Timeout bounds a single capture. Zero leaves the caller's context in
	// charge.
	Timeout time.Duration
}

func (c ChromeCapturer) Capture(ctx context.Context, req CaptureRequest) (image.Image, error) {
	opts := req.Options.withDefaults()
	html, err := RenderHTML(req.Invoice)
	if err != nil {
		return nil, &CanvasRenderError{Reason: "render html", Err: err}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if c.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	runCtx, cancelRun := chromedp.NewContext(allocCtx)
	defer cancelRun()
	if c.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, c.Timeout)
		defer cancelTimeout()
	}

	bg := toRGBA(opts.Background)
	dataURL := "data:text/html," + url.PathEscape(html)
	var crossOrigin int
	err = chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(previewViewportWidth, 1123, opts.Scale, false),
		emulation.SetDefaultBackgroundColorOverride().WithColor(bg),
		chromedp.Navigate(dataURL),
		chromedp.Evaluate(fmt.Sprintf(crossOriginImagesJS, opts.Selector), &crossOrigin),
	)
	if err != nil {
		return nil, &CanvasRenderError{Reason: "load document", Err: err}
	}
	if crossOrigin < 0 {
		return nil, &ElementNotFoundError{Selector: opts.Selector}
	}
	if crossOrigin > 0 && !opts.AllowCrossOrigin {
		return nil, &CanvasRenderError{Reason: fmt.Sprintf("%d cross-origin image(s) in capture target", crossOrigin)}
	}

	var shot []byte
	if err := chromedp.Run(runCtx,
		chromedp.Screenshot(opts.Selector, &shot, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return nil, &CanvasRenderError{Reason: "screenshot", Err: err}
	}
	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, &CanvasRenderError{Reason: "decode screenshot", Err: err}
	}
	return img, nil
}

func toRGBA(c interface{ RGBA() (r, g, b, a uint32) }) *cdp.RGBA {
	r, g, b, a := c.RGBA()
	return &cdp.RGBA{
		R: int64(r >> 8),
		G: int64(g >> 8),
		B: int64(b >> 8),
		A: float64(a) / 0xffff,
	}
}
