// Package render draws the mirrored camera feed, face overlays and particles
// onto a square canvas and presents it on one or more surfaces.
package render

import "image"

// DefaultFraction is the share of the viewport width used by the canvas.
const DefaultFraction = 0.4

// Rect places a square canvas inside a viewport.
type Rect struct {
	X, Y int
	Size int
}

// Min returns the top-left corner.
func (r Rect) Min() image.Point {
	return image.Pt(r.X, r.Y)
}

// Layout computes a square canvas whose side is fraction of the viewport
// width, centered in the viewport. The side never exceeds the viewport height
// and is at least one pixel.
func Layout(viewportW, viewportH int, fraction float64) Rect {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultFraction
	}

	size := int(float64(viewportW)*fraction + 0.5)
	if viewportH > 0 && size > viewportH {
		size = viewportH
	}
	if size < 1 {
		size = 1
	}

	return Rect{
		X:    (viewportW - size) / 2,
		Y:    (viewportH - size) / 2,
		Size: size,
	}
}
