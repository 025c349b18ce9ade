package app

import (
	"context"
	"time"

	"github.com/ayusman/mukha/internal/particle"
	"github.com/ayusman/mukha/internal/render"
)

// Keys handled by the render loop
const (
	keyEscape = 27
)

// renderer owns the canvas and the particle pool. Only the render goroutine
// touches it.
type renderer struct {
	app        *App
	canvas     *render.Canvas
	particles  *particle.System
	frame      uint64
	resetUntil uint64
}

func (a *App) newRenderer(rect render.Rect) *renderer {
	size := float64(rect.Size)
	return &renderer{
		app:       a,
		canvas:    render.NewCanvas(rect.Size),
		particles: particle.NewSystem(a.config.Particles, particle.Bounds{Width: size, Height: size}, a.config.Rand),
	}
}

// renderLoop draws one frame per tick until ctx is cancelled.
func (a *App) renderLoop(ctx context.Context) {
	defer a.wg.Done()

	rect := a.Layout()
	r := a.newRenderer(rect)
	defer func() { r.canvas.Close() }()
	a.place(rect)

	ticker := time.NewTicker(time.Second / time.Duration(a.config.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.resetCh:
			r.reset()
		case rect := <-a.resizeCh:
			r.resize(rect)
			a.place(rect)
		case <-ticker.C:
			a.handleKey(r.draw())
		}
	}
}

func (a *App) place(rect render.Rect) {
	if p, ok := a.config.Surface.(render.Placer); ok {
		p.Place(rect)
	}
}

// draw renders one frame and presents it. It returns the pressed key.
func (r *renderer) draw() int {
	a := r.app
	r.frame++

	cameraOn := a.cameraOn.Load()
	r.background(cameraOn)

	snap := a.perception.Load()
	size := float64(r.canvas.Size())
	sx, sy := r.scale(size)
	burst := r.frame%BurstEvery == 0

	r.particles.Step()
	for _, face := range snap.Faces {
		marks := render.FaceMarks(face, sx, sy, size, a.config.ShowLandmarks)
		r.canvas.DrawMarks(marks)
		if burst && marks.HasBox {
			r.particles.Burst(particle.Vec2{X: marks.Center.X, Y: marks.Center.Y}, BurstSize)
		}
	}
	r.canvas.DrawParticles(r.particles.Particles())
	r.canvas.DrawStatus(statusText(cameraOn, len(snap.Faces), r.frame < r.resetUntil))

	a.frames.Store(r.frame)
	a.particles.Store(int64(r.particles.Len()))

	return a.config.Surface.Present(r.canvas.Mat())
}

// background paints the mirrored live frame, or the placeholder when the
// camera is off or has nothing buffered.
func (r *renderer) background(cameraOn bool) {
	if !cameraOn {
		r.canvas.Placeholder()
		return
	}
	frame, err := r.app.camera.ReadFrame()
	if err != nil {
		r.canvas.Placeholder()
		return
	}
	r.canvas.Mirror(*frame)
	frame.Close()
}

// scale maps source-frame pixels to canvas pixels.
func (r *renderer) scale(size float64) (float64, float64) {
	w, h := r.app.camera.Size()
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	return size / float64(w), size / float64(h)
}

func (r *renderer) reset() {
	r.particles.Reset()
	r.resetUntil = r.frame + resetNoticeFrames
	r.app.resetUntil.Store(r.resetUntil)
	r.app.particles.Store(int64(r.particles.Len()))
}

func (r *renderer) resize(rect render.Rect) {
	if rect.Size == r.canvas.Size() {
		return
	}
	r.canvas.Close()
	r.canvas = render.NewCanvas(rect.Size)
	size := float64(rect.Size)
	r.particles.Resize(particle.Bounds{Width: size, Height: size})
	r.app.log.WithField("size", rect.Size).Debug("canvas resized")
}

func (a *App) handleKey(key int) {
	switch key {
	case 'c', 'C':
		a.ToggleCamera()
	case 'r', 'R':
		a.Reset()
	case 'q', 'Q', keyEscape:
		a.Quit()
	}
}
