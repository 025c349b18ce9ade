// Package particle implements the decorative particle pool drawn over the
// camera feed: ambient drift, floor replenishment and bursts near a face.
package particle

import (
	"image/color"
	"math/rand/v2"
)

// Particle tuning
const (
	// MaxLife is the life of a freshly spawned particle.
	MaxLife = 255
	// DefaultDecay is the life lost per update.
	DefaultDecay = 2
	// DefaultFloor is the minimum pool size restored after every step.
	DefaultFloor = 30
	// DefaultInitial is the ambient population seeded at startup and on reset.
	DefaultInitial = 50
	// DefaultMaxSpeed bounds each velocity component to [-MaxSpeed, MaxSpeed).
	DefaultMaxSpeed = 2.0
	// MinSize and MaxSize bound the particle radius.
	MinSize = 3.0
	MaxSize = 8.0
)

// Vec2 is a 2D position or velocity in canvas pixels.
type Vec2 struct {
	X, Y float64
}

// Bounds is the canvas area particles bounce inside.
type Bounds struct {
	Width, Height float64
}

// Particle is one ephemeral visual entity.
type Particle struct {
	Pos   Vec2
	Vel   Vec2
	Life  int
	Size  float64
	Color color.RGBA
}

// Alive reports whether the particle still has life left. Life below zero is dead.
func (p *Particle) Alive() bool {
	return p.Life >= 0
}

// Alpha returns the particle opacity in [0,1], derived from remaining life.
func (p *Particle) Alpha() float64 {
	switch {
	case p.Life <= 0:
		return 0
	case p.Life >= MaxLife:
		return 1
	}
	return float64(p.Life) / MaxLife
}

// Update advances the particle one frame. A velocity component is inverted
// when the particle is outside the bounds on that axis and still moving
// outward, so each wall crossing flips it exactly once.
func (p *Particle) Update(b Bounds, decay int) {
	p.Pos.X += p.Vel.X
	p.Pos.Y += p.Vel.Y
	p.Life -= decay

	if (p.Pos.X < 0 && p.Vel.X < 0) || (p.Pos.X > b.Width && p.Vel.X > 0) {
		p.Vel.X = -p.Vel.X
	}
	if (p.Pos.Y < 0 && p.Vel.Y < 0) || (p.Pos.Y > b.Height && p.Vel.Y > 0) {
		p.Vel.Y = -p.Vel.Y
	}
}

// spawner creates particles with randomized motion and appearance.
type spawner struct {
	rng      *rand.Rand
	maxSpeed float64
}

func (s spawner) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func (s spawner) at(pos Vec2) Particle {
	return Particle{
		Pos: pos,
		Vel: Vec2{
			X: s.uniform(-s.maxSpeed, s.maxSpeed),
			Y: s.uniform(-s.maxSpeed, s.maxSpeed),
		},
		Life: MaxLife,
		Size: s.uniform(MinSize, MaxSize),
		Color: color.RGBA{
			R: uint8(s.uniform(100, 255)),
			G: uint8(s.uniform(100, 255)),
			B: uint8(s.uniform(150, 255)),
			A: 255,
		},
	}
}

func (s spawner) ambient(b Bounds) Particle {
	return s.at(Vec2{X: s.uniform(0, b.Width), Y: s.uniform(0, b.Height)})
}
