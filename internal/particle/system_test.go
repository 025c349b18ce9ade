package particle

import "testing"

func TestNewSystem(t *testing.T) {
	s := NewSystem(DefaultConfig(), canvas, testRand())

	if s.Len() != DefaultInitial {
		t.Errorf("Len() = %d, want %d", s.Len(), DefaultInitial)
	}
	if s.Bounds() != canvas {
		t.Errorf("Bounds() = %v, want %v", s.Bounds(), canvas)
	}

	nilRng := NewSystem(Config{Floor: 5, Initial: 7}, canvas, nil)
	if nilRng.Len() != 7 {
		t.Errorf("Len() = %d, want 7", nilRng.Len())
	}
}

func TestSystem_Step(t *testing.T) {
	t.Run("never below floor after replenish", func(t *testing.T) {
		s := NewSystem(DefaultConfig(), canvas, testRand())

		for i := 0; i < 400; i++ {
			s.Step()
			if s.Len() < DefaultFloor {
				t.Fatalf("step %d: pool size %d below floor %d", i, s.Len(), DefaultFloor)
			}
		}
	})

	t.Run("removes dead particles before display", func(t *testing.T) {
		s := NewSystem(Config{Floor: 0, Initial: 0}, canvas, testRand())
		s.SpawnAt(Vec2{X: 10, Y: 10})
		s.particles[0].Life = 1

		s.Step()

		if s.Len() != 0 {
			t.Errorf("dead particle should be removed, pool size %d", s.Len())
		}
		for _, p := range s.Particles() {
			if !p.Alive() {
				t.Errorf("dead particle visible: %+v", p)
			}
		}
	})

	t.Run("replenishes to floor with fresh ambient particles", func(t *testing.T) {
		s := NewSystem(Config{Floor: 30, Initial: 0}, canvas, testRand())
		if s.Len() != 0 {
			t.Fatalf("expected empty pool, got %d", s.Len())
		}

		s.Step()

		if s.Len() != 30 {
			t.Errorf("Len() = %d, want 30", s.Len())
		}
		for _, p := range s.Particles() {
			if p.Life != MaxLife {
				t.Errorf("replenished particle life = %d, want %d", p.Life, MaxLife)
			}
		}
	})

	t.Run("pool above the floor is not trimmed", func(t *testing.T) {
		s := NewSystem(Config{Floor: 30, Initial: 80}, canvas, testRand())
		s.Step()
		if s.Len() != 80 {
			t.Errorf("Len() = %d, want 80", s.Len())
		}
	})
}

func TestSystem_Burst(t *testing.T) {
	s := NewSystem(Config{Floor: 0, Initial: 0}, canvas, testRand())
	seed := Vec2{X: 320, Y: 240}

	s.Burst(seed, 3)

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	for _, p := range s.Particles() {
		if p.Pos != seed {
			t.Errorf("burst particle at %v, want %v", p.Pos, seed)
		}
	}
}

func TestSystem_Reset(t *testing.T) {
	s := NewSystem(DefaultConfig(), canvas, testRand())
	s.Burst(Vec2{X: 1, Y: 1}, 20)

	s.Reset()

	if s.Len() != DefaultInitial {
		t.Errorf("Len() after Reset = %d, want %d", s.Len(), DefaultInitial)
	}
	for _, p := range s.Particles() {
		if p.Life != MaxLife {
			t.Errorf("reset particle life = %d, want %d", p.Life, MaxLife)
		}
	}
}

func TestSystem_Resize(t *testing.T) {
	s := NewSystem(Config{Floor: 50, Initial: 0}, canvas, testRand())
	small := Bounds{Width: 10, Height: 10}

	s.Resize(small)
	s.Replenish()

	for _, p := range s.Particles() {
		if p.Pos.X >= small.Width || p.Pos.Y >= small.Height {
			t.Errorf("particle %v outside resized bounds", p.Pos)
		}
	}
}
