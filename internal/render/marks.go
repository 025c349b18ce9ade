package render

import (
	"image"
	"math"

	"github.com/ayusman/mukha/internal/detector"
)

// Marks is the overlay geometry of one face in mirrored canvas pixels.
type Marks struct {
	Box      image.Rectangle
	HasBox   bool
	Center   detector.Point2D
	LeftEye  *image.Point
	RightEye *image.Point
	Lip      []image.Point
	Points   []image.Point
}

// FaceMarks scales a face from source-frame pixels to the canvas with sx, sy
// and mirrors it around the canvas width. Absent keypoints produce no marks.
func FaceMarks(face detector.Face, sx, sy, canvasWidth float64, withPoints bool) Marks {
	f := face.Scale(sx, sy)
	var m Marks

	if f.Box != nil && !f.Box.Empty() {
		b := *f.Box
		left := canvasWidth - (b.X + b.Width)
		m.Box = image.Rect(round(left), round(b.Y), round(left+b.Width), round(b.Y+b.Height))
		m.HasBox = true
		m.Center = detector.Mirror(b.Center(), canvasWidth)
	}

	if p, ok := f.LeftEye(); ok {
		pt := point(detector.Mirror(p, canvasWidth))
		m.LeftEye = &pt
	}
	if p, ok := f.RightEye(); ok {
		pt := point(detector.Mirror(p, canvasWidth))
		m.RightEye = &pt
	}

	for _, p := range f.UpperLip() {
		m.Lip = append(m.Lip, point(detector.Mirror(p, canvasWidth)))
	}

	if withPoints {
		for i := range f.Keypoints {
			if p, ok := f.Keypoint(i); ok {
				m.Points = append(m.Points, point(detector.Mirror(p, canvasWidth)))
			}
		}
	}

	return m
}

func point(p detector.Point2D) image.Point {
	return image.Pt(round(p.X), round(p.Y))
}

func round(v float64) int {
	return int(math.Round(v))
}
