package sink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashplayd/internal/segment/segtest"
	"dashplayd/internal/sink"
)

func TestMemorySinkBufferedRanges(t *testing.T) {
	s := sink.NewMemorySink(0)
	tb, err := s.AddTrackBuffer(`video/mp4; codecs="avc1.64001f"`)
	require.NoError(t, err)

	require.NoError(t, tb.Append(segtest.Init()))
	assert.Empty(t, tb.Buffered(), "init data carries no presentation range")

	require.NoError(t, tb.Append(segtest.Media(1, 0, 1000, []uint32{2000})))
	require.NoError(t, tb.Append(segtest.Media(2, 2000, 1000, []uint32{2000})))

	got := tb.Buffered()
	require.Len(t, got, 2)
	assert.InDelta(t, 0.0, got[0].Start, 1e-9)
	assert.InDelta(t, 2.0, got[0].End, 1e-9)
	assert.InDelta(t, 2.0, got[1].Start, 1e-9)
	assert.InDelta(t, 4.0, got[1].End, 1e-9)
}

func TestMemorySinkQuota(t *testing.T) {
	seg := segtest.Media(1, 0, 1000, []uint32{2000})

	s := sink.NewMemorySink(len(seg) + len(seg)/2)
	tb, err := s.AddTrackBuffer("video/mp4")
	require.NoError(t, err)

	require.NoError(t, tb.Append(seg))
	err = tb.Append(segtest.Media(2, 2000, 1000, []uint32{2000}))
	assert.ErrorIs(t, err, sink.ErrQuotaExceeded)
}

func TestMemorySinkRemoveReleasesQuota(t *testing.T) {
	seg := segtest.Media(1, 0, 1000, []uint32{2000})

	s := sink.NewMemorySink(len(seg))
	tb, err := s.AddTrackBuffer("video/mp4")
	require.NoError(t, err)
	require.NoError(t, tb.Append(seg))

	tb2, err := s.AddTrackBuffer("audio/mp4")
	require.NoError(t, err)
	assert.ErrorIs(t, tb2.Append(seg), sink.ErrQuotaExceeded)

	require.NoError(t, s.RemoveTrackBuffer(tb))
	assert.NoError(t, tb2.Append(seg))
}

func TestMemorySinkRemoveTwice(t *testing.T) {
	s := sink.NewMemorySink(0)
	tb, err := s.AddTrackBuffer("video/mp4")
	require.NoError(t, err)

	require.NoError(t, s.RemoveTrackBuffer(tb))
	assert.Error(t, s.RemoveTrackBuffer(tb))
	assert.Error(t, tb.Append(segtest.Init()), "append to a removed buffer")
}

func TestMemorySinkReadyCallback(t *testing.T) {
	s := sink.NewMemorySink(0)

	fired := 0
	s.OnReady(func() { fired++ })

	require.NoError(t, s.Attach(sink.NewMemorySurface()))
	assert.Equal(t, 1, fired)
}

func TestMemorySinkSetDuration(t *testing.T) {
	s := sink.NewMemorySink(0)
	s.SetDuration(90)
	assert.InDelta(t, 90.0, s.Duration(), 1e-9)
}

func TestMemorySurfaceNotifications(t *testing.T) {
	surf := sink.NewMemorySurface()

	var seeks, updates int
	surf.OnSeeking(func() { seeks++ })
	surf.OnTimeUpdate(func() { updates++ })

	surf.Seek(12.5)
	assert.InDelta(t, 12.5, surf.CurrentTime(), 1e-9)
	assert.Equal(t, 1, seeks)
	assert.Equal(t, 0, updates)

	surf.Advance(0.25)
	assert.InDelta(t, 12.75, surf.CurrentTime(), 1e-9)
	assert.Equal(t, 1, updates)
}

func TestMemoryRegistry(t *testing.T) {
	reg := sink.NewMemoryRegistry(nil)
	_, err := reg.Lookup("missing")
	assert.Error(t, err)

	surf := sink.NewMemorySurface()
	reg.Register("player-1", surf)

	got, err := reg.Lookup("player-1")
	require.NoError(t, err)
	assert.Same(t, surf, got.(*sink.MemorySurface))
}

func TestMemoryRegistryFactory(t *testing.T) {
	reg := sink.NewMemoryRegistry(func() sink.Surface { return sink.NewMemorySurface() })

	first, err := reg.Lookup("auto")
	require.NoError(t, err)

	second, err := reg.Lookup("auto")
	require.NoError(t, err)
	assert.Same(t, first.(*sink.MemorySurface), second.(*sink.MemorySurface), "lookup is stable per id")
}
