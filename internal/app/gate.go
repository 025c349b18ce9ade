package app

import "sync"

// gate is a one-shot readiness signal carrying the outcome of a resource
// acquisition.
type gate struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newGate() *gate {
	return &gate{done: make(chan struct{})}
}

// resolve records the outcome. Only the first call has any effect.
func (g *gate) resolve(err error) {
	g.once.Do(func() {
		g.err = err
		close(g.done)
	})
}

// Done is closed once the gate is resolved.
func (g *gate) Done() <-chan struct{} {
	return g.done
}

// Ready reports whether the gate resolved without error.
func (g *gate) Ready() bool {
	select {
	case <-g.done:
		return g.err == nil
	default:
		return false
	}
}

// Err returns the recorded error once resolved.
func (g *gate) Err() error {
	select {
	case <-g.done:
		return g.err
	default:
		return nil
	}
}
