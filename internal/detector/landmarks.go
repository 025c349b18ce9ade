// Package detector provides face landmark detection interfaces and types.
package detector

import "math"

// FaceMesh keypoint indices following the MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	// NumLandmarks is the keypoint count of a FaceMesh result without iris refinement.
	NumLandmarks = 468
	// NumRefinedLandmarks is the keypoint count when iris refinement is enabled.
	NumRefinedLandmarks = 478
)

// LeftEyeIndices are the contour keypoints averaged to find the left eye center.
var LeftEyeIndices = []int{33, 7, 163, 144, 145, 153, 154, 155, 133, 173, 157, 158, 159, 160, 161, 246}

// RightEyeIndices are the contour keypoints averaged to find the right eye center.
var RightEyeIndices = []int{362, 382, 381, 380, 374, 373, 390, 249, 263, 466, 388, 387, 386, 385, 384, 398}

// upperLip is the set of keypoints drawn as mouth markers.
var upperLip = map[int]struct{}{
	61: {}, 84: {}, 17: {}, 314: {}, 405: {}, 320: {},
	307: {}, 375: {}, 321: {}, 308: {}, 324: {}, 318: {},
}

// IsUpperLip reports whether keypoint index i belongs to the upper lip set.
func IsUpperLip(i int) bool {
	_, ok := upperLip[i]
	return ok
}

// Point2D is a position in pixel space.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint is a single indexed landmark. Present is false when the detector
// returned no usable coordinates for this index.
type Keypoint struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Present bool    `json:"present"`
}

// Box is an axis-aligned face bounding box in pixel space.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box.
func (b Box) Center() Point2D {
	return Point2D{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Face is one detection result. Faces are replaced wholesale every detection
// cycle and must not be mutated after publication.
type Face struct {
	Keypoints []Keypoint `json:"keypoints"`
	Box       *Box       `json:"box,omitempty"`
	Score     float64    `json:"score"`
}

// Keypoint returns the keypoint at index i. The second result is false when
// the index is out of range or the keypoint is absent.
func (f *Face) Keypoint(i int) (Point2D, bool) {
	if f == nil || i < 0 || i >= len(f.Keypoints) {
		return Point2D{}, false
	}
	kp := f.Keypoints[i]
	if !kp.Present {
		return Point2D{}, false
	}
	return Point2D{X: kp.X, Y: kp.Y}, true
}

// Centroid averages the present keypoints among indices.
// It returns false when none of them is present.
func (f *Face) Centroid(indices []int) (Point2D, bool) {
	var sum Point2D
	count := 0
	for _, idx := range indices {
		p, ok := f.Keypoint(idx)
		if !ok {
			continue
		}
		sum.X += p.X
		sum.Y += p.Y
		count++
	}
	if count == 0 {
		return Point2D{}, false
	}
	return Point2D{X: sum.X / float64(count), Y: sum.Y / float64(count)}, true
}

// LeftEye returns the left eye center, if any contributing keypoint is present.
func (f *Face) LeftEye() (Point2D, bool) {
	return f.Centroid(LeftEyeIndices)
}

// RightEye returns the right eye center, if any contributing keypoint is present.
func (f *Face) RightEye() (Point2D, bool) {
	return f.Centroid(RightEyeIndices)
}

// UpperLip returns the present upper lip keypoints in index order.
func (f *Face) UpperLip() []Point2D {
	if f == nil {
		return nil
	}
	var points []Point2D
	for i, kp := range f.Keypoints {
		if !kp.Present || !IsUpperLip(i) {
			continue
		}
		points = append(points, Point2D{X: kp.X, Y: kp.Y})
	}
	return points
}

// Bounds computes the bounding box of all present keypoints.
// It returns false when fewer than two distinct points are present.
func (f *Face) Bounds() (Box, bool) {
	if f == nil {
		return Box{}, false
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, kp := range f.Keypoints {
		if !kp.Present {
			continue
		}
		minX = math.Min(minX, kp.X)
		minY = math.Min(minY, kp.Y)
		maxX = math.Max(maxX, kp.X)
		maxY = math.Max(maxY, kp.Y)
	}
	b := Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
	if math.IsInf(minX, 1) || b.Empty() {
		return Box{}, false
	}
	return b, true
}

// Scale returns a copy of the face with every coordinate multiplied by sx, sy.
func (f Face) Scale(sx, sy float64) Face {
	out := Face{Score: f.Score}
	if len(f.Keypoints) > 0 {
		out.Keypoints = make([]Keypoint, len(f.Keypoints))
		for i, kp := range f.Keypoints {
			out.Keypoints[i] = Keypoint{X: kp.X * sx, Y: kp.Y * sy, Present: kp.Present}
		}
	}
	if f.Box != nil {
		out.Box = &Box{X: f.Box.X * sx, Y: f.Box.Y * sy, Width: f.Box.Width * sx, Height: f.Box.Height * sy}
	}
	return out
}

// MirrorX maps an x coordinate into a horizontally flipped space of the given width.
func MirrorX(x, width float64) float64 {
	return width - x
}

// Mirror maps p into a horizontally flipped space of the given width.
func Mirror(p Point2D, width float64) Point2D {
	return Point2D{X: MirrorX(p.X, width), Y: p.Y}
}

func validCoord(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
