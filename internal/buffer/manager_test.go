package buffer_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashplayd/internal/buffer"
	"dashplayd/internal/fetch"
	"dashplayd/internal/logger"
	"dashplayd/internal/manifest"
	"dashplayd/internal/segment/segtest"
	"dashplayd/internal/sink"
)

const testMPD = `<MPD mediaPresentationDuration="PT20S"><Period>
  <AdaptationSet contentType="video" mimeType="video/mp4" codecs="avc1.64001f">
    <SegmentTemplate timescale="1000" duration="2000" startNumber="1" initialization="$RepresentationID$/init.mp4" media="$RepresentationID$/seg-$Number%03d$.m4s"/>
    <Representation id="video" bandwidth="1000000"/>
  </AdaptationSet>
</Period></MPD>`

// segmentServer serves the test track: init data plus media segments whose
// sidx places segment n at [2(n-1), 2n) seconds.
type segmentServer struct {
	*httptest.Server

	mu    sync.Mutex
	paths []string
}

func newSegmentServer(t *testing.T) *segmentServer {
	t.Helper()
	ss := &segmentServer{}

	ss.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ss.mu.Lock()
		ss.paths = append(ss.paths, r.URL.Path)
		ss.mu.Unlock()

		switch {
		case !strings.HasPrefix(r.URL.Path, "/stream/"):
			http.NotFound(w, r)
		case strings.HasSuffix(r.URL.Path, "/init.mp4"):
			w.Write(segtest.Init())
		case strings.Contains(r.URL.Path, "/seg-"):
			var n int
			fmt.Sscanf(r.URL.Path[strings.Index(r.URL.Path, "/seg-"):], "/seg-%03d.m4s", &n)
			w.Write(segtest.Media(uint32(n), uint32((n-1)*2000), 1000, []uint32{2000}))
		default:
			http.NotFound(w, r)
		}
	}))

	t.Cleanup(ss.Close)
	return ss
}

func (ss *segmentServer) requested() []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return append([]string{}, ss.paths...)
}

func newManager(t *testing.T, ss *segmentServer, snk sink.Sink) *buffer.Manager {
	t.Helper()

	m, err := manifest.Parse([]byte(testMPD))
	require.NoError(t, err)

	mgr, err := buffer.NewManager(logger.Nop(), fetch.NewClient(logger.Nop(), ""), snk, m.Tracks()[0])
	require.NoError(t, err)

	base, err := url.Parse(ss.URL + "/stream/")
	require.NoError(t, err)
	return mgr.WithBaseURL(base)
}

func TestFetchInitSegment(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(0))

	data, err := mgr.FetchInitSegment(context.Background())
	require.NoError(t, err)
	require.NoError(t, mgr.AppendInitSegment(data))

	assert.Equal(t, []string{"/stream/video/init.mp4"}, ss.requested())
}

func TestFetchSegmentUsesExplicitID(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(0))

	require.False(t, mgr.CurrentTime(10), "nothing buffered yet")

	_, err := mgr.FetchSegment(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"/stream/video/seg-004.m4s"}, ss.requested(), "explicit id wins over the inferred one")
}

func TestFetchSegmentInfersFromTime(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(0))

	mgr.CurrentTime(10)

	_, err := mgr.FetchSegment(context.Background(), 0)
	require.NoError(t, err)
	// floor(10 / 2) + 1 with a 2s nominal segment duration.
	assert.Equal(t, []string{"/stream/video/seg-006.m4s"}, ss.requested())
}

func TestFetchSegmentSequential(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(0))

	mgr.CurrentTime(0.5)

	data, err := mgr.FetchSegment(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, mgr.AppendSegment(data))

	assert.True(t, mgr.CurrentTime(0.5), "segment 1 covers the target now")
	assert.False(t, mgr.IsBuffering())

	_, err = mgr.FetchSegment(context.Background(), 0)
	require.NoError(t, err)

	got := ss.requested()
	assert.Equal(t, "/stream/video/seg-002.m4s", got[len(got)-1], "sequential playback asks for last appended + 1")
}

func TestFetchSegmentStatusError(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(0))

	mgr.CurrentTime(100) // segment 51 does not exist; handler 404s unknown paths

	base, _ := url.Parse(ss.URL + "/nowhere/")
	mgr.WithBaseURL(base)

	_, err := mgr.FetchSegment(context.Background(), 0)
	assert.ErrorIs(t, err, fetch.ErrStatus)
}

func TestAppendSegmentOutOfRangeBelow(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(0))

	mgr.CurrentTime(10)

	// Segment 8 covers [14, 16]; the target precedes it.
	err := mgr.AppendSegment(segtest.Media(8, 14000, 1000, []uint32{2000}))

	var outOfRange *buffer.OutOfRangeError
	require.ErrorAs(t, err, &outOfRange)
	assert.Equal(t, 7, outOfRange.NextSegment)
}

func TestAppendSegmentOutOfRangeAbove(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(0))

	mgr.CurrentTime(10)

	// Segment 3 covers [4, 6]; the target is past it.
	err := mgr.AppendSegment(segtest.Media(3, 4000, 1000, []uint32{2000}))

	var outOfRange *buffer.OutOfRangeError
	require.ErrorAs(t, err, &outOfRange)
	assert.Equal(t, 4, outOfRange.NextSegment)
}

func TestAppendSegmentQuotaPassthrough(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(1)) // everything exceeds one byte

	mgr.CurrentTime(1)

	err := mgr.AppendSegment(segtest.Media(1, 0, 1000, []uint32{2000}))
	assert.ErrorIs(t, err, sink.ErrQuotaExceeded)
}

func TestAppendSegmentPropagatesSinkError(t *testing.T) {
	ss := newSegmentServer(t)
	sinkErr := errors.New("backing store closed")
	mgr := newManager(t, ss, &errorSink{err: sinkErr})

	mgr.CurrentTime(1)

	// Non-quota, non-range append failures pass through unwrapped so the
	// caller can classify them as fatal.
	err := mgr.AppendSegment(segtest.Media(1, 0, 1000, []uint32{2000}))
	assert.ErrorIs(t, err, sinkErr)
}

func TestAppendSegmentUnparseable(t *testing.T) {
	ss := newSegmentServer(t)
	mgr := newManager(t, ss, sink.NewMemorySink(0))

	err := mgr.AppendSegment([]byte("not a segment"))
	assert.Error(t, err)
}

func TestNewManagerRejectsUnusableTrack(t *testing.T) {
	m, err := manifest.Parse([]byte(`<MPD><Period><AdaptationSet><Representation id="bare"/></AdaptationSet></Period></MPD>`))
	require.NoError(t, err)

	_, err = buffer.NewManager(logger.Nop(), fetch.NewClient(logger.Nop(), ""), sink.NewMemorySink(0), m.Tracks()[0])
	assert.ErrorIs(t, err, manifest.ErrConfiguration)
}

// errorSink fails every append with a fixed error.
type errorSink struct {
	err error
}

func (s *errorSink) OnReady(fn func())                           {}
func (s *errorSink) Attach(surface sink.Surface) error           { return nil }
func (s *errorSink) Detach()                                     {}
func (s *errorSink) SetDuration(seconds float64)                 {}
func (s *errorSink) RemoveTrackBuffer(tb sink.TrackBuffer) error { return nil }

func (s *errorSink) AddTrackBuffer(mimeCodec string) (sink.TrackBuffer, error) {
	return errorBuffer{err: s.err}, nil
}

type errorBuffer struct {
	err error
}

func (b errorBuffer) Append(data []byte) error { return b.err }
func (b errorBuffer) Buffered() []sink.Range   { return nil }

func TestBufferedReflectsSink(t *testing.T) {
	ss := newSegmentServer(t)
	snk := sink.NewMemorySink(0)
	mgr := newManager(t, ss, snk)

	mgr.CurrentTime(0.5)
	require.NoError(t, mgr.AppendSegment(segtest.Media(1, 0, 1000, []uint32{2000})))

	set := mgr.Buffered()
	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Contains(1.0))
	assert.False(t, set.Contains(3.0))
}
