package logo

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/invoicecraft/studio/internal/apperr"
)

func pngBytes(t *testing.T, w, h int, fill color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPrepare_SmallImageKeptAsIs(t *testing.T) {
	data := pngBytes(t, 20, 10, color.Black)
	l, err := Prepare(data, 100)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if l.MIME != "image/png" || l.Resized || l.Width != 20 || l.Height != 10 {
		t.Fatalf("unexpected logo %+v", l)
	}
	mime, got, err := ParseDataURL(l.DataURL)
	if err != nil || mime != "image/png" || !bytes.Equal(got, data) {
		t.Fatalf("data url round trip failed: %v", err)
	}
}

func TestPrepare_LargeImageDownsized(t *testing.T) {
	l, err := Prepare(pngBytes(t, 400, 200, color.Black), 100)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !l.Resized || l.Width != 100 || l.Height != 50 {
		t.Fatalf("expected 100x50 resize, got %+v", l)
	}
}

func TestPrepare_RejectsNonImage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("%PDF-1.4 not an image"), []byte("hello world")} {
		_, err := Prepare(data, 0)
		if !errors.Is(err, apperr.Validation) {
			t.Fatalf("expected validation error for %q, got %v", data, err)
		}
	}
}

func TestParseDataURL_Invalid(t *testing.T) {
	for _, s := range []string{"", "http://x/logo.png", "data:image/png,raw", "data:image/png;base64,!!"} {
		if _, _, err := ParseDataURL(s); !errors.Is(err, ErrNotDataURL) {
			t.Fatalf("%q: expected ErrNotDataURL, got %v", s, err)
		}
	}
}

func TestColorKeyRemover(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(2, 2, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)

	out, err := ColorKeyRemover{Tolerance: 8}.RemoveBackground(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	res, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, _, _, a := res.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("background should be transparent")
	}
	if _, _, _, a := res.At(2, 2).RGBA(); a == 0 {
		t.Fatalf("foreground should be kept")
	}
}

func TestHTTPRemover(t *testing.T) {
	cutout := pngBytes(t, 2, 2, color.Transparent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(cutout)
	}))
	defer srv.Close()

	src := DataURL("image/png", pngBytes(t, 2, 2, color.White))
	got, err := RemoveFromDataURL(context.Background(), NewHTTPRemover(srv.URL, "k", 0), src)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got != DataURL("image/png", cutout) {
		t.Fatalf("unexpected result %s", got)
	}

	_, err = RemoveFromDataURL(context.Background(), NewHTTPRemover(srv.URL, "wrong", 0), src)
	if !errors.Is(err, ErrRemovalFailed) || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected recoverable failure, got %v", err)
	}
}

func TestRemoveFromDataURL_BadInput(t *testing.T) {
	_, err := RemoveFromDataURL(context.Background(), ColorKeyRemover{}, "not a data url")
	if !errors.Is(err, ErrRemovalFailed) {
		t.Fatalf("expected removal failure, got %v", err)
	}
}
