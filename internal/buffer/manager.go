// Package buffer implements the per-track manager that decides which segment
// to fetch next, validates fetched segments against the playback target and
// feeds them into the track's sink buffer.
package buffer

import (
	"context"
	"fmt"
	"net/url"

	"dashplayd/internal/fetch"
	"dashplayd/internal/logger"
	"dashplayd/internal/manifest"
	"dashplayd/internal/ranges"
	"dashplayd/internal/segment"
	"dashplayd/internal/sink"
)

// defaultSegmentDuration is used for seek-target estimation when the segment
// template declares no duration.
const defaultSegmentDuration = 10.0

// OutOfRangeError reports a fetched segment whose presentation span does not
// cover the requested playback time. NextSegment is the corrected guess: one
// below the parsed segment when the target precedes it, one above otherwise.
// Callers re-fetch with the correction instead of bisecting blindly.
type OutOfRangeError struct {
	NextSegment int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("segment does not cover the target time, corrected next segment is %d", e.NextSegment)
}

// Manager owns fetch-and-append for one active track.
type Manager struct {
	logger  logger.Logger
	track   manifest.Track
	fetcher *fetch.Client
	snk     sink.Sink
	buf     sink.TrackBuffer

	baseURL     *url.URL
	lastSegment int
	currentTime float64
}

// NewManager validates the track, allocates its sink buffer and returns a
// manager for it. Validation failures are configuration errors and fatal.
func NewManager(log logger.Logger, fetcher *fetch.Client, snk sink.Sink, track manifest.Track) (*Manager, error) {
	if err := track.Validate(); err != nil {
		return nil, err
	}

	mimeCodec := fmt.Sprintf("%s; codecs=%q", track.MIME(), track.Codecs())
	buf, err := snk.AddTrackBuffer(mimeCodec)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sink buffer for track %s: %w", track.ID(), err)
	}

	base, _ := url.Parse("http://127.0.0.1/")

	return &Manager{
		logger:  log,
		track:   track,
		fetcher: fetcher,
		snk:     snk,
		buf:     buf,
		baseURL: base,
	}, nil
}

// WithBaseURL sets the base the track's segment paths resolve against.
func (m *Manager) WithBaseURL(base *url.URL) *Manager {
	m.baseURL = base
	return m
}

// ID returns the track's representation identifier.
func (m *Manager) ID() string {
	return m.track.ID()
}

// Cleanup releases the manager's slice of the sink.
func (m *Manager) Cleanup() error {
	return m.snk.RemoveTrackBuffer(m.buf)
}

// FetchInitSegment resolves the track's initialization path and retrieves it.
func (m *Manager) FetchInitSegment(ctx context.Context) ([]byte, error) {
	tpl, err := m.track.Initialization()
	if err != nil {
		return nil, err
	}

	path := tpl.WithRepresentationID(m.track.ID()).String()
	return m.fetcher.Fetch(ctx, m.segmentURL(path))
}

// AppendInitSegment hands initialization bytes to the sink unmodified. Any
// failure here stops the session; initialization is never retried.
func (m *Manager) AppendInitSegment(data []byte) error {
	if err := m.buf.Append(data); err != nil {
		return fmt.Errorf("failed to append init segment for track %s: %w", m.track.ID(), err)
	}
	return nil
}

// CurrentTime records a new target playback time and reports whether it is
// already covered by the buffered ranges. A false return is the caller's
// signal to fetch more data now.
func (m *Manager) CurrentTime(t float64) bool {
	m.currentTime = t
	return m.Buffered().Contains(t)
}

// IsBuffering reports whether the recorded target time is still outside the
// buffered ranges, without touching the recorded time.
func (m *Manager) IsBuffering() bool {
	return !m.Buffered().Contains(m.currentTime)
}

// FetchSegment retrieves the next media segment. When the target time is not
// buffered (hard seek or initial fill) the segment is the explicit id when
// given, else an estimate from the nominal segment duration; during
// sequential playback it is simply the last appended number plus one. An
// explicit id of zero or less means none was supplied.
func (m *Manager) FetchSegment(ctx context.Context, explicit int) ([]byte, error) {
	var target int
	if !m.Buffered().Contains(m.currentTime) {
		target = explicit
		if target <= 0 {
			target = m.segmentForTime(m.currentTime)
		}
		m.logger.Infof("Guessing segment %d for track %s at time %.2f (hard seek)", target, m.track.ID(), m.currentTime)
	} else {
		target = m.lastSegment + 1
		m.logger.Debugf("Asking for segment %d on track %s", target, m.track.ID())
	}

	tpl, err := m.track.Media()
	if err != nil {
		return nil, err
	}

	path := tpl.WithRepresentationID(m.track.ID()).WithNumber(target).String()
	return m.fetcher.Fetch(ctx, m.segmentURL(path))
}

// AppendSegment parses the segment's embedded metadata, verifies it covers
// the target time while buffering, and appends it to the sink. The error is
// an *OutOfRangeError for a wrong guess, sink.ErrQuotaExceeded for
// backpressure, and fatal for anything else.
func (m *Manager) AppendSegment(data []byte) error {
	md, err := segment.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse segment metadata for track %s: %w", m.track.ID(), err)
	}

	if m.IsBuffering() {
		start := md.PTS()
		end := start + md.Duration().Seconds()
		m.logger.Debugf("Segment %d on track %s covers [%.2f, %.2f], target %.2f", md.SegmentNumber, m.track.ID(), start, end, m.currentTime)

		if m.currentTime < start || m.currentTime > end {
			next := md.SegmentNumber + 1
			if m.currentTime < start {
				next = md.SegmentNumber - 1
			}
			return &OutOfRangeError{NextSegment: next}
		}
	}

	if err := m.buf.Append(data); err != nil {
		return err
	}

	m.lastSegment = md.SegmentNumber
	return nil
}

// Buffered rebuilds the interval set from the sink's reported spans. The
// sink is queried every time; it is the source of truth for what survived
// appends and evictions.
func (m *Manager) Buffered() *ranges.Set {
	set := ranges.New()
	for _, r := range m.buf.Buffered() {
		set.Push(r.Start, r.End)
	}
	return set
}

// segmentForTime estimates the segment number covering ts. The estimate only
// needs to be close: AppendSegment detects a miss and reports the corrected
// neighbour.
func (m *Manager) segmentForTime(ts float64) int {
	dur, ok := m.track.SegmentDuration()
	if !ok {
		dur = defaultSegmentDuration
	}
	return int(ts/dur) + 1
}

// segmentURL resolves a segment path against the track's base URL.
func (m *Manager) segmentURL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return m.baseURL.String() + "/" + path
	}
	return m.baseURL.ResolveReference(ref).String()
}
