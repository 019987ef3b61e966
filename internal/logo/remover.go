package logo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"time"

	"golang.org/x/image/draw"
)

// ErrRemovalFailed marks a background removal the user may retry with a
// different image. The previous logo stays in place.
var ErrRemovalFailed = errors.New("background removal failed")

// Remover returns img with its background made transparent, as PNG.
type Remover interface {
	RemoveBackground(ctx context.Context, img []byte) ([]byte, error)
}

// HTTPRemover posts the image to a segmentation service that answers with a
// PNG cut-out.
type HTTPRemover struct {
	URL        string
	APIKey     string
	httpClient *http.Client
}

func NewHTTPRemover(url, apiKey string, timeout time.Duration) *HTTPRemover {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPRemover{URL: url, APIKey: apiKey, httpClient: &http.Client{Timeout: timeout}}
}

func (r *HTTPRemover) RemoveBackground(ctx context.Context, img []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrRemovalFailed, err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(img))
	req.Header.Set("Accept", "image/png")
	if r.APIKey != "" {
		req.Header.Set("X-Api-Key", r.APIKey)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemovalFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRemovalFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: service error (status %d): %s", ErrRemovalFailed, resp.StatusCode, string(body))
	}
	if _, err := png.DecodeConfig(bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("%w: response is not a PNG: %v", ErrRemovalFailed, err)
	}
	return body, nil
}

// ColorKeyRemover clears every pixel close to the colour of the top-left
// corner. It works offline and suits logos on a flat backdrop.
type ColorKeyRemover struct {
	// Tolerance is the largest per-channel distance (0-255) still treated as
	// background.
	Tolerance uint8
}

func (r ColorKeyRemover) RemoveBackground(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemovalFailed, err)
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	key := dst.NRGBAAt(0, 0)
	tol := int(r.Tolerance)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := dst.NRGBAAt(x, y)
			if near(c.R, key.R, tol) && near(c.G, key.G, tol) && near(c.B, key.B, tol) {
				dst.SetNRGBA(x, y, color.NRGBA{})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrRemovalFailed, err)
	}
	return buf.Bytes(), nil
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// RemoveFromDataURL runs r on a stored logo and returns the cut-out as a PNG
// data URL. Any failure wraps ErrRemovalFailed.
func RemoveFromDataURL(ctx context.Context, r Remover, dataURL string) (string, error) {
	_, data, err := ParseDataURL(dataURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemovalFailed, err)
	}
	out, err := r.RemoveBackground(ctx, data)
	if err != nil {
		if errors.Is(err, ErrRemovalFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrRemovalFailed, err)
	}
	return DataURL("image/png", out), nil
}
