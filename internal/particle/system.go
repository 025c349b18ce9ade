package particle

import (
	"math/rand/v2"
	"time"
)

// Config holds the pool tuning.
type Config struct {
	Floor    int
	Initial  int
	Decay    int
	MaxSpeed float64
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Floor:    DefaultFloor,
		Initial:  DefaultInitial,
		Decay:    DefaultDecay,
		MaxSpeed: DefaultMaxSpeed,
	}
}

// System owns the particle pool. It is not safe for concurrent use; a single
// render goroutine owns and mutates it.
type System struct {
	config    Config
	bounds    Bounds
	spawn     spawner
	particles []Particle
}

// NewSystem creates a pool inside bounds and seeds the initial ambient
// population. A nil rng uses a time-seeded source.
func NewSystem(config Config, bounds Bounds, rng *rand.Rand) *System {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if config.Decay <= 0 {
		config.Decay = DefaultDecay
	}
	if config.MaxSpeed <= 0 {
		config.MaxSpeed = DefaultMaxSpeed
	}

	s := &System{
		config: config,
		bounds: bounds,
		spawn:  spawner{rng: rng, maxSpeed: config.MaxSpeed},
	}
	s.Reset()
	return s
}

// SpawnAmbient adds one particle at a uniformly random position.
func (s *System) SpawnAmbient() {
	s.particles = append(s.particles, s.spawn.ambient(s.bounds))
}

// SpawnAt adds one particle seeded at pos.
func (s *System) SpawnAt(pos Vec2) {
	s.particles = append(s.particles, s.spawn.at(pos))
}

// Burst adds n particles seeded at pos.
func (s *System) Burst(pos Vec2, n int) {
	for i := 0; i < n; i++ {
		s.SpawnAt(pos)
	}
}

// Step advances every particle, removes the dead ones and replenishes the
// pool up to the floor.
func (s *System) Step() {
	alive := s.particles[:0]
	for i := range s.particles {
		p := s.particles[i]
		p.Update(s.bounds, s.config.Decay)
		if p.Alive() {
			alive = append(alive, p)
		}
	}
	clear(s.particles[len(alive):])
	s.particles = alive

	s.Replenish()
}

// Replenish spawns ambient particles until the pool reaches the floor.
func (s *System) Replenish() {
	for len(s.particles) < s.config.Floor {
		s.SpawnAmbient()
	}
}

// Reset discards every particle and reseeds the initial ambient population.
func (s *System) Reset() {
	s.particles = s.particles[:0]
	for i := 0; i < s.config.Initial; i++ {
		s.SpawnAmbient()
	}
}

// Resize changes the bounds used for bouncing and ambient seeding.
func (s *System) Resize(b Bounds) {
	s.bounds = b
}

// Bounds returns the current bounds.
func (s *System) Bounds() Bounds {
	return s.bounds
}

// Len returns the current pool size.
func (s *System) Len() int {
	return len(s.particles)
}

// Particles returns the live pool. The slice is only valid until the next
// mutating call and must not be modified.
func (s *System) Particles() []Particle {
	return s.particles
}
