package particle

import (
	"math/rand/v2"
	"testing"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

var canvas = Bounds{Width: 640, Height: 480}

func TestParticle_Update(t *testing.T) {
	t.Run("moves by velocity and decays", func(t *testing.T) {
		p := Particle{Pos: Vec2{X: 100, Y: 100}, Vel: Vec2{X: 1.5, Y: -0.5}, Life: MaxLife}

		p.Update(canvas, DefaultDecay)

		if p.Pos.X != 101.5 || p.Pos.Y != 99.5 {
			t.Errorf("position = %v, want (101.5, 99.5)", p.Pos)
		}
		if p.Life != MaxLife-DefaultDecay {
			t.Errorf("life = %d, want %d", p.Life, MaxLife-DefaultDecay)
		}
	})

	t.Run("life decreases by the decay on every call", func(t *testing.T) {
		p := Particle{Pos: Vec2{X: 10, Y: 10}, Life: MaxLife}
		prev := p.Life
		for i := 0; i < 200; i++ {
			p.Update(canvas, DefaultDecay)
			if prev-p.Life != DefaultDecay {
				t.Fatalf("step %d: life went %d -> %d", i, prev, p.Life)
			}
			prev = p.Life
		}
	})

	t.Run("dies once life crosses below zero and stays dead", func(t *testing.T) {
		p := Particle{Pos: Vec2{X: 10, Y: 10}, Life: MaxLife}
		steps := 0
		for p.Alive() {
			p.Update(canvas, DefaultDecay)
			steps++
		}
		if steps != 128 {
			t.Errorf("particle died after %d steps, want 128", steps)
		}
		if p.Life >= 0 {
			t.Errorf("dead particle has life %d", p.Life)
		}
		p.Update(canvas, DefaultDecay)
		if p.Alive() {
			t.Error("a dead particle must never report alive again")
		}
	})
}

func TestParticle_Bounce(t *testing.T) {
	tests := []struct {
		name    string
		pos     Vec2
		vel     Vec2
		wantVel Vec2
	}{
		{name: "left wall", pos: Vec2{X: 1, Y: 100}, vel: Vec2{X: -2, Y: 0}, wantVel: Vec2{X: 2, Y: 0}},
		{name: "right wall", pos: Vec2{X: 639, Y: 100}, vel: Vec2{X: 2, Y: 1}, wantVel: Vec2{X: -2, Y: 1}},
		{name: "top wall", pos: Vec2{X: 100, Y: 0.5}, vel: Vec2{X: 1, Y: -1}, wantVel: Vec2{X: 1, Y: 1}},
		{name: "bottom wall", pos: Vec2{X: 100, Y: 479.5}, vel: Vec2{X: 0, Y: 1}, wantVel: Vec2{X: 0, Y: -1}},
		{name: "corner", pos: Vec2{X: 0.5, Y: 0.5}, vel: Vec2{X: -1, Y: -1}, wantVel: Vec2{X: 1, Y: 1}},
		{name: "inside", pos: Vec2{X: 300, Y: 200}, vel: Vec2{X: -1, Y: 1}, wantVel: Vec2{X: -1, Y: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Particle{Pos: tt.pos, Vel: tt.vel, Life: MaxLife}
			p.Update(canvas, DefaultDecay)
			if p.Vel != tt.wantVel {
				t.Errorf("velocity = %v, want %v", p.Vel, tt.wantVel)
			}
		})
	}
}

func TestParticle_BounceOncePerCrossing(t *testing.T) {
	// Deep outside with a slow outward velocity: the component flips once and
	// keeps its sign while the particle travels back in.
	p := Particle{Pos: Vec2{X: -10, Y: 100}, Vel: Vec2{X: -0.5, Y: 0}, Life: MaxLife}

	flips := 0
	prev := p.Vel.X
	for i := 0; i < 30; i++ {
		p.Update(canvas, 0)
		if (prev < 0) != (p.Vel.X < 0) {
			flips++
		}
		prev = p.Vel.X
	}

	if flips != 1 {
		t.Errorf("velocity flipped %d times, want exactly 1", flips)
	}
	if p.Vel.X <= 0 {
		t.Errorf("particle should be heading back in, vel = %f", p.Vel.X)
	}
}

func TestParticle_Alpha(t *testing.T) {
	tests := []struct {
		life int
		want float64
	}{
		{MaxLife, 1},
		{0, 0},
		{-1, 0},
		{300, 1},
	}
	for _, tt := range tests {
		p := Particle{Life: tt.life}
		if got := p.Alpha(); got != tt.want {
			t.Errorf("Alpha() with life %d = %f, want %f", tt.life, got, tt.want)
		}
	}

	mid := Particle{Life: 51}
	if got := mid.Alpha(); got != 0.2 {
		t.Errorf("Alpha() with life 51 = %f, want 0.2", got)
	}
}

func TestSpawner(t *testing.T) {
	s := spawner{rng: testRand(), maxSpeed: DefaultMaxSpeed}

	for i := 0; i < 500; i++ {
		p := s.ambient(canvas)

		if p.Pos.X < 0 || p.Pos.X >= canvas.Width || p.Pos.Y < 0 || p.Pos.Y >= canvas.Height {
			t.Fatalf("ambient particle outside canvas: %v", p.Pos)
		}
		if p.Vel.X < -2 || p.Vel.X >= 2 || p.Vel.Y < -2 || p.Vel.Y >= 2 {
			t.Fatalf("velocity out of range: %v", p.Vel)
		}
		if p.Size < MinSize || p.Size >= MaxSize {
			t.Fatalf("size out of range: %f", p.Size)
		}
		if p.Color.R < 100 || p.Color.G < 100 || p.Color.B < 150 {
			t.Fatalf("color out of range: %v", p.Color)
		}
		if p.Life != MaxLife {
			t.Fatalf("life = %d, want %d", p.Life, MaxLife)
		}
	}

	at := s.at(Vec2{X: 0, Y: 0})
	if at.Pos != (Vec2{}) {
		t.Errorf("positional spawn at origin moved to %v", at.Pos)
	}
}
