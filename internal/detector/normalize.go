package detector

// wireFace is the raw face layout emitted by detection backends. Every field
// is optional on the wire; normalize turns it into a Face or drops it.
type wireFace struct {
	Keypoints []*wirePoint `json:"keypoints"`
	Box       *wireBox     `json:"box"`
	Score     float64      `json:"score"`
}

type wirePoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type wireBox struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

func (p *wirePoint) keypoint() Keypoint {
	if p == nil || p.X == nil || p.Y == nil || !validCoord(*p.X) || !validCoord(*p.Y) {
		return Keypoint{}
	}
	return Keypoint{X: *p.X, Y: *p.Y, Present: true}
}

func (b *wireBox) box() (Box, bool) {
	if b == nil || b.X == nil || b.Y == nil || b.Width == nil || b.Height == nil {
		return Box{}, false
	}
	box := Box{X: *b.X, Y: *b.Y, Width: *b.Width, Height: *b.Height}
	for _, v := range []float64{box.X, box.Y, box.Width, box.Height} {
		if !validCoord(v) {
			return Box{}, false
		}
	}
	if box.Empty() {
		return Box{}, false
	}
	return box, true
}

// normalize converts one wire face. Faces with neither a usable box nor any
// present keypoint are malformed and reported as not ok.
func (w wireFace) normalize() (Face, bool) {
	face := Face{Score: w.Score}

	present := 0
	if len(w.Keypoints) > 0 {
		face.Keypoints = make([]Keypoint, len(w.Keypoints))
		for i, p := range w.Keypoints {
			face.Keypoints[i] = p.keypoint()
			if face.Keypoints[i].Present {
				present++
			}
		}
	}

	if b, ok := w.Box.box(); ok {
		face.Box = &b
	} else if b, ok := face.Bounds(); ok {
		face.Box = &b
	}

	if face.Box == nil && present == 0 {
		return Face{}, false
	}
	return face, true
}

// normalizeFaces converts wire faces, skipping malformed entries and keeping
// at most maxFaces results when maxFaces is positive.
func normalizeFaces(raw []wireFace, maxFaces int) []Face {
	faces := make([]Face, 0, len(raw))
	for _, w := range raw {
		if maxFaces > 0 && len(faces) >= maxFaces {
			break
		}
		if f, ok := w.normalize(); ok {
			faces = append(faces, f)
		}
	}
	return faces
}
