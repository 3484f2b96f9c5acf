package vision

import "image"

// RGB is a target colour for pixel search.
type RGB struct {
	R, G, B uint8
}

// FindPixel returns the first pixel (row-major) of img whose channels are
// each within tolerance of target.
func FindPixel(img image.Image, target RGB, tolerance int) (Point, bool) {
	b := img.Bounds()

	within := func(r, g, bl uint8) bool {
		return absDiff(r, target.R) <= tolerance &&
			absDiff(g, target.G) <= tolerance &&
			absDiff(bl, target.B) <= tolerance
	}

	switch src := img.(type) {
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := src.PixOffset(b.Min.X, y)
			for x := b.Min.X; x < b.Max.X; x, i = x+1, i+4 {
				if within(src.Pix[i], src.Pix[i+1], src.Pix[i+2]) {
					return Point{X: x - b.Min.X, Y: y - b.Min.Y}, true
				}
			}
		}
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := src.PixOffset(b.Min.X, y)
			for x := b.Min.X; x < b.Max.X; x, i = x+1, i+4 {
				if within(src.Pix[i], src.Pix[i+1], src.Pix[i+2]) {
					return Point{X: x - b.Min.X, Y: y - b.Min.Y}, true
				}
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				if within(uint8(r>>8), uint8(g>>8), uint8(bl>>8)) {
					return Point{X: x - b.Min.X, Y: y - b.Min.Y}, true
				}
			}
		}
	}
	return Point{}, false
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
