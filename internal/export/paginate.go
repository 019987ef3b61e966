package export

// heightEpsilon absorbs float error when the scaled content height is an
// exact multiple of the page height.
const heightEpsilon = 1e-4

// Placement is one page of output: the full image drawn with its top edge at
// OffsetY (millimetres, zero or negative).
type Placement struct {
	Page    int     `json:"page"`
	OffsetY float64 `json:"offsetY"`
}

// Layout is the result of slicing a raster into pages.
type Layout struct {
	Page        PageGeometry `json:"page"`
	ImageWidth  float64      `json:"imageWidth"`
	ImageHeight float64      `json:"imageHeight"`
	Placements  []Placement  `json:"placements"`
}

func (l Layout) Pages() int { return len(l.Placements) }

// Paginate scales a raster of rasterW x rasterH pixels to the page width and
// emits one placement per page until the scaled height is fully revealed.
// The first page is always emitted, so empty content still yields a page.
func Paginate(rasterW, rasterH int, page PageGeometry) Layout {
	l := Layout{Page: page, ImageWidth: page.Width}
	if rasterW > 0 && rasterH > 0 {
		l.ImageHeight = float64(rasterH) * page.Width / float64(rasterW)
	}

	l.Placements = append(l.Placements, Placement{Page: 1, OffsetY: 0})
	if page.Height <= 0 {
		return l
	}
	heightLeft := l.ImageHeight - page.Height
	for heightLeft > heightEpsilon {
		n := len(l.Placements)
		l.Placements = append(l.Placements, Placement{Page: n + 1, OffsetY: -float64(n) * page.Height})
		heightLeft -= page.Height
	}
	return l
}
