package app

import (
	"sync/atomic"
	"time"

	"github.com/ayusman/mukha/internal/detector"
)

// Snapshot is one published detection result. Snapshots are immutable once
// published.
type Snapshot struct {
	Faces []detector.Face
	Seq   uint64
	At    time.Time
}

var emptySnapshot = &Snapshot{}

// Perception holds the latest detection result. Writers replace the whole
// snapshot; readers never block and never see a partial write.
type Perception struct {
	current atomic.Pointer[Snapshot]
	seq     atomic.Uint64
}

// Publish replaces the current snapshot with faces.
func (p *Perception) Publish(faces []detector.Face) *Snapshot {
	s := &Snapshot{
		Faces: faces,
		Seq:   p.seq.Add(1),
		At:    time.Now(),
	}
	p.current.Store(s)
	return s
}

// Clear publishes an empty result.
func (p *Perception) Clear() {
	p.Publish(nil)
}

// Load returns the current snapshot. It never returns nil.
func (p *Perception) Load() *Snapshot {
	if s := p.current.Load(); s != nil {
		return s
	}
	return emptySnapshot
}
