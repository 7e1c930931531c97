// Package sink defines the capability interfaces for the playback sink (a
// buffered media-append primitive) and the playback surface (the thing that
// has a playhead). The player core only talks to these interfaces, so its
// scheduling and parsing logic runs against any concrete binding, including
// the in-memory ones shipped here.
package sink

import "errors"

// ErrQuotaExceeded reports that the sink refused an append because its
// internal storage is full. Callers wait and retry; the data is never
// dropped. It is distinguishable from every other append failure.
var ErrQuotaExceeded = errors.New("sink buffer quota exceeded")

// Range is a buffered span of presentation time in seconds.
type Range struct {
	Start float64
	End   float64
}

// TrackBuffer is one track's slice of the sink.
type TrackBuffer interface {
	// Append hands one segment's bytes to the sink. Backpressure surfaces
	// as ErrQuotaExceeded; anything else is a genuine append failure.
	Append(data []byte) error
	// Buffered reports the currently materialized time spans. The sink is
	// the source of truth for what survived appends and evictions.
	Buffered() []Range
}

// Sink is the buffered-media endpoint the player feeds.
type Sink interface {
	// OnReady registers the callback fired once the sink is attached and
	// accepting buffers. Registering replaces any previous callback.
	OnReady(fn func())
	// Attach wires the sink to a playback surface and fires the ready
	// callback.
	Attach(surface Surface) error
	// Detach releases the surface wiring.
	Detach()
	// SetDuration declares the total presentation duration in seconds.
	SetDuration(seconds float64)
	// AddTrackBuffer allocates one buffer for a track, keyed by its
	// mime/codec string.
	AddTrackBuffer(mimeCodec string) (TrackBuffer, error)
	// RemoveTrackBuffer releases a buffer allocated by AddTrackBuffer.
	RemoveTrackBuffer(tb TrackBuffer) error
}

// Surface exposes the playback position and its change notifications.
type Surface interface {
	CurrentTime() float64
	OnSeeking(fn func())
	OnTimeUpdate(fn func())
}

// SurfaceRegistry resolves a session's surface identifier to a Surface.
type SurfaceRegistry interface {
	Lookup(id string) (Surface, error)
}
