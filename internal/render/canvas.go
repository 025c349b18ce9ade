package render

import (
	"image"
	"image/color"

	"github.com/ayusman/mukha/internal/particle"
	"gocv.io/x/gocv"
)

// Overlay colors
var (
	PlaceholderColor = color.RGBA{R: 40, G: 40, B: 50, A: 255}
	BoxColor         = color.RGBA{R: 0, G: 255, B: 150, A: 255}
	EyeColor         = color.RGBA{R: 0, G: 200, B: 255, A: 255}
	LipColor         = color.RGBA{R: 255, G: 80, B: 120, A: 255}
	PointColor       = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	TextColor        = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// BoxThickness is the face box outline width in pixels.
const BoxThickness = 2

// Canvas is the square drawing buffer. It is owned by a single goroutine.
type Canvas struct {
	mat  gocv.Mat
	size int
}

// NewCanvas allocates a size x size canvas filled with the placeholder color.
func NewCanvas(size int) *Canvas {
	if size < 1 {
		size = 1
	}
	return &Canvas{
		mat:  gocv.NewMatWithSizeFromScalar(scalar(PlaceholderColor), size, size, gocv.MatTypeCV8UC3),
		size: size,
	}
}

// Size returns the canvas side in pixels.
func (c *Canvas) Size() int {
	return c.size
}

// Mat exposes the underlying buffer for presentation.
func (c *Canvas) Mat() *gocv.Mat {
	return &c.mat
}

// Close releases the buffer.
func (c *Canvas) Close() error {
	return c.mat.Close()
}

// Placeholder fills the canvas with the camera-off color.
func (c *Canvas) Placeholder() {
	c.mat.SetTo(scalar(PlaceholderColor))
}

// Mirror scales frame to the canvas and flips it horizontally.
func (c *Canvas) Mirror(frame gocv.Mat) {
	if frame.Empty() {
		c.Placeholder()
		return
	}
	gocv.Resize(frame, &c.mat, image.Pt(c.size, c.size), 0, 0, gocv.InterpolationLinear)
	gocv.Flip(c.mat, &c.mat, 1)
}

// DrawMarks draws a face overlay.
func (c *Canvas) DrawMarks(m Marks) {
	if m.HasBox {
		gocv.Rectangle(&c.mat, m.Box, BoxColor, BoxThickness)
	}
	for _, p := range m.Points {
		gocv.Circle(&c.mat, p, 1, PointColor, -1)
	}
	if m.LeftEye != nil {
		gocv.Circle(&c.mat, *m.LeftEye, 5, EyeColor, -1)
	}
	if m.RightEye != nil {
		gocv.Circle(&c.mat, *m.RightEye, 5, EyeColor, -1)
	}
	for _, p := range m.Lip {
		gocv.Circle(&c.mat, p, 3, LipColor, -1)
	}
}

// DrawParticles draws every particle as a filled circle faded by its life.
func (c *Canvas) DrawParticles(particles []particle.Particle) {
	for i := range particles {
		p := &particles[i]
		center := image.Pt(round(p.Pos.X), round(p.Pos.Y))
		radius := round(p.Size)
		if radius < 1 {
			radius = 1
		}
		gocv.Circle(&c.mat, center, radius, Fade(p.Color, p.Alpha()), -1)
	}
}

// DrawStatus writes a status line in the top-left corner.
func (c *Canvas) DrawStatus(text string) {
	if text == "" {
		return
	}
	gocv.PutText(&c.mat, text, image.Pt(10, 24), gocv.FontHersheySimplex, 0.6, TextColor, 2)
}

// Fade scales a color by alpha in [0,1].
func Fade(c color.RGBA, alpha float64) color.RGBA {
	switch {
	case alpha <= 0:
		return color.RGBA{A: 255}
	case alpha >= 1:
		return c
	}
	return color.RGBA{
		R: uint8(float64(c.R) * alpha),
		G: uint8(float64(c.G) * alpha),
		B: uint8(float64(c.B) * alpha),
		A: 255,
	}
}

// scalar converts an RGB color to an OpenCV BGR scalar.
func scalar(c color.RGBA) gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}
