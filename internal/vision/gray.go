package vision

import (
	"image"
	"image/draw"
)

// Point is a pixel coordinate in capture space.
type Point struct {
	X int
	Y int
}

// Grayscale converts img to an 8-bit grayscale image anchored at (0, 0).
// A *image.Gray that is already anchored at the origin is returned as is.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Rect, img, b.Min, draw.Src)
	return g
}
