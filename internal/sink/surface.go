package sink

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemorySurface is an in-memory playback surface. Seek and Advance move the
// playhead and fire the registered notifications, mirroring how a real
// surface emits "seeking" and "timeupdate".
type MemorySurface struct {
	mu         sync.Mutex
	time       float64
	seeking    []func()
	timeUpdate []func()
}

// NewMemorySurface creates a surface with the playhead at zero.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

// CurrentTime returns the playhead position in seconds.
func (s *MemorySurface) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.time
}

// OnSeeking registers a seeking notification callback.
func (s *MemorySurface) OnSeeking(fn func()) {
	s.mu.Lock()
	s.seeking = append(s.seeking, fn)
	s.mu.Unlock()
}

// OnTimeUpdate registers a timeupdate notification callback.
func (s *MemorySurface) OnTimeUpdate(fn func()) {
	s.mu.Lock()
	s.timeUpdate = append(s.timeUpdate, fn)
	s.mu.Unlock()
}

// Seek moves the playhead and fires the seeking notifications.
func (s *MemorySurface) Seek(t float64) {
	s.mu.Lock()
	s.time = t
	fns := append([]func(){}, s.seeking...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Advance moves the playhead forward and fires the timeupdate notifications.
func (s *MemorySurface) Advance(dt float64) {
	s.mu.Lock()
	s.time += dt
	fns := append([]func(){}, s.timeUpdate...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ClockSurface is a MemorySurface whose playhead advances with wall time,
// letting the engine buffer ahead of a simulated playback without a real
// rendering stack behind it.
type ClockSurface struct {
	*MemorySurface
}

// NewClockSurface starts a surface ticking every interval until ctx is done.
func NewClockSurface(ctx context.Context, interval time.Duration) *ClockSurface {
	cs := &ClockSurface{MemorySurface: NewMemorySurface()}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs.Advance(interval.Seconds())
			}
		}
	}()

	return cs
}

// MemoryRegistry resolves surface identifiers to surfaces. When a factory is
// set, unknown identifiers get a fresh surface on first lookup.
type MemoryRegistry struct {
	mu       sync.Mutex
	surfaces map[string]Surface
	factory  func() Surface
}

// NewMemoryRegistry creates a registry. factory may be nil, in which case
// lookups of unregistered identifiers fail.
func NewMemoryRegistry(factory func() Surface) *MemoryRegistry {
	return &MemoryRegistry{
		surfaces: make(map[string]Surface),
		factory:  factory,
	}
}

// Register binds an identifier to a surface.
func (r *MemoryRegistry) Register(id string, s Surface) {
	r.mu.Lock()
	r.surfaces[id] = s
	r.mu.Unlock()
}

// Lookup returns the surface for id, creating one when a factory is set.
func (r *MemoryRegistry) Lookup(id string) (Surface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, found := r.surfaces[id]; found {
		return s, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("no surface registered for %q", id)
	}

	s := r.factory()
	r.surfaces[id] = s
	return s, nil
}
