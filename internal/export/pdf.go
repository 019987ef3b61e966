package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/jung-kurt/gofpdf"
)

const rasterImageName = "invoice-raster"

// encodePDF writes one page per placement, each showing the same registered
// raster shifted up by the placement offset. The page clips the overflow.
func encodePDF(raster image.Image, layout Layout) ([]byte, error) {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, raster); err != nil {
		return nil, fmt.Errorf("encode raster png: %w", err)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: layout.Page.Width, Ht: layout.Page.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("invoicecraft", true)

	imgOpts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(rasterImageName, imgOpts, &pngBuf)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("register raster: %w", err)
	}

	for _, p := range layout.Placements {
		pdf.AddPage()
		pdf.ImageOptions(rasterImageName, 0, p.OffsetY, layout.ImageWidth, layout.ImageHeight, false, imgOpts, 0, "")
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return out.Bytes(), nil
}
