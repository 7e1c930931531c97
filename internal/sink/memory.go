package sink

import (
	"errors"
	"fmt"
	"sync"

	"dashplayd/internal/segment"
)

// MemorySink is an in-memory Sink with a byte quota. Appended media segments
// are parsed for their timing metadata so buffered ranges reflect what was
// actually appended; appends that carry no segment index (initialization
// data) occupy quota but add no range.
type MemorySink struct {
	mu       sync.Mutex
	quota    int
	used     int
	duration float64
	attached bool
	readyFn  func()
	buffers  map[*MemoryTrackBuffer]struct{}
}

// NewMemorySink creates a sink that refuses appends once quotaBytes of data
// are resident. A quota of zero means unlimited.
func NewMemorySink(quotaBytes int) *MemorySink {
	return &MemorySink{
		quota:   quotaBytes,
		buffers: make(map[*MemoryTrackBuffer]struct{}),
	}
}

// OnReady registers the ready callback, replacing any previous one.
func (s *MemorySink) OnReady(fn func()) {
	s.mu.Lock()
	s.readyFn = fn
	s.mu.Unlock()
}

// Attach marks the sink ready and fires the ready callback.
func (s *MemorySink) Attach(surface Surface) error {
	s.mu.Lock()
	s.attached = true
	fn := s.readyFn
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// Detach releases the surface wiring.
func (s *MemorySink) Detach() {
	s.mu.Lock()
	s.attached = false
	s.readyFn = nil
	s.mu.Unlock()
}

// SetDuration records the declared presentation duration.
func (s *MemorySink) SetDuration(seconds float64) {
	s.mu.Lock()
	s.duration = seconds
	s.mu.Unlock()
}

// Duration returns the declared presentation duration.
func (s *MemorySink) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// AddTrackBuffer allocates one in-memory buffer for a track.
func (s *MemorySink) AddTrackBuffer(mimeCodec string) (TrackBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb := &MemoryTrackBuffer{sink: s, mimeCodec: mimeCodec}
	s.buffers[tb] = struct{}{}
	return tb, nil
}

// RemoveTrackBuffer releases a buffer and the quota it held.
func (s *MemorySink) RemoveTrackBuffer(tb TrackBuffer) error {
	mtb, ok := tb.(*MemoryTrackBuffer)
	if !ok {
		return errors.New("track buffer does not belong to this sink")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.buffers[mtb]; !found {
		return fmt.Errorf("track buffer %q already removed", mtb.mimeCodec)
	}
	delete(s.buffers, mtb)
	s.used -= mtb.used
	return nil
}

// MemoryTrackBuffer is one track's slice of a MemorySink.
type MemoryTrackBuffer struct {
	sink      *MemorySink
	mimeCodec string
	used      int
	appended  [][]byte
	ranges    []Range
}

// Append stores one segment's bytes, charging the sink-wide quota.
func (b *MemoryTrackBuffer) Append(data []byte) error {
	b.sink.mu.Lock()
	defer b.sink.mu.Unlock()

	if _, found := b.sink.buffers[b]; !found {
		return fmt.Errorf("append to removed track buffer %q", b.mimeCodec)
	}

	if b.sink.quota > 0 && b.sink.used+len(data) > b.sink.quota {
		return ErrQuotaExceeded
	}

	// Media segments carry a sidx we can derive the covered span from.
	// Initialization data does not parse and contributes no range.
	if md, err := segment.Parse(data); err == nil {
		b.ranges = append(b.ranges, Range{
			Start: md.PTS(),
			End:   md.PTS() + md.Duration().Seconds(),
		})
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	b.appended = append(b.appended, stored)
	b.used += len(data)
	b.sink.used += len(data)
	return nil
}

// Buffered reports the time spans covered by appended media segments.
func (b *MemoryTrackBuffer) Buffered() []Range {
	b.sink.mu.Lock()
	defer b.sink.mu.Unlock()

	out := make([]Range, len(b.ranges))
	copy(out, b.ranges)
	return out
}

// AppendCount returns how many appends succeeded; used by tests.
func (b *MemoryTrackBuffer) AppendCount() int {
	b.sink.mu.Lock()
	defer b.sink.mu.Unlock()
	return len(b.appended)
}
