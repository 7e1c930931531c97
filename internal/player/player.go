// Package player implements the central event loop that orchestrates
// manifest loading, sink attachment, seek handling and segment scheduling
// for one playback session at a time.
package player

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"time"

	"dashplayd/internal/buffer"
	"dashplayd/internal/fetch"
	"dashplayd/internal/logger"
	"dashplayd/internal/manifest"
	"dashplayd/internal/sink"
)

// Config carries the scheduling intervals of the loop.
type Config struct {
	// QuotaBackoff is how long to wait before retrying an append the sink
	// refused for capacity.
	QuotaBackoff time.Duration
	// PaceInterval spaces sequential segment loads so the loop buffers
	// ahead steadily instead of as fast as possible.
	PaceInterval time.Duration
}

// DefaultConfig returns the stock scheduling intervals.
func DefaultConfig() Config {
	return Config{
		QuotaBackoff: 1000 * time.Millisecond,
		PaceInterval: 200 * time.Millisecond,
	}
}

type eventKind int

const (
	evSinkReady eventKind = iota
	evSeeking
	evTryLoad
)

// event is one internal occurrence, tagged with the generation of the
// session that produced it so stale events cannot touch a later session.
type event struct {
	gen         uint64
	kind        eventKind
	track       int
	nextSegment int // 0 means no explicit target
}

// session is the state of one active playback session.
type session struct {
	gen         uint64
	id          string
	manifestURL string
	manifest    *manifest.Manifest
	surface     sink.Surface
	tracks      map[int]*buffer.Manager
	events      chan event
	result      chan<- error // pending create notifier, nil once delivered

	ctx    context.Context
	cancel context.CancelFunc
}

// Player multiplexes external commands, internally generated events and
// deferred retries over a single logical worker. Exactly one session is
// active at a time; starting a new one tears the previous one down first.
type Player struct {
	logger   logger.Logger
	fetcher  *fetch.Client
	snk      sink.Sink
	surfaces sink.SurfaceRegistry
	cfg      Config

	cmds chan command
	gen  uint64
	sess *session
}

// New creates a player over the given collaborators.
func New(log logger.Logger, fetcher *fetch.Client, snk sink.Sink, surfaces sink.SurfaceRegistry, cfg Config) *Player {
	if cfg.QuotaBackoff <= 0 {
		cfg.QuotaBackoff = DefaultConfig().QuotaBackoff
	}
	if cfg.PaceInterval <= 0 {
		cfg.PaceInterval = DefaultConfig().PaceInterval
	}

	return &Player{
		logger:   log,
		fetcher:  fetcher,
		snk:      snk,
		surfaces: surfaces,
		cfg:      cfg,
		cmds:     make(chan command, 16),
	}
}

// Control returns the session control surface for this player.
func (p *Player) Control() *Control {
	return &Control{cmds: p.cmds}
}

// Run drives the event loop until ctx is cancelled, the command channel is
// closed, a teardown command arrives, or a fatal append error ends the
// session. One event is processed per iteration; commands win when several
// sources are ready at once.
func (p *Player) Run(ctx context.Context) error {
	defer p.detach()

	for {
		select {
		case cmd, ok := <-p.cmds:
			if !ok {
				p.logger.Infof("Command channel closed, stopping player loop.")
				return nil
			}
			if p.handleCommand(cmd) {
				return nil
			}
			continue
		default:
		}

		var events chan event
		if p.sess != nil {
			events = p.sess.events
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-p.cmds:
			if !ok {
				p.logger.Infof("Command channel closed, stopping player loop.")
				return nil
			}
			if p.handleCommand(cmd) {
				return nil
			}
		case ev := <-events:
			if err := p.handleEvent(ev); err != nil {
				return err
			}
		}
	}
}

// handleCommand processes one external command and reports whether the loop
// should stop.
func (p *Player) handleCommand(cmd command) bool {
	switch cmd := cmd.(type) {
	case createCommand:
		p.detach()
		if err := p.startSession(cmd); err != nil {
			p.logger.Errorf("Failed to start session %s: %v", cmd.id, err)
			if p.sess != nil {
				p.sess.result = nil // the terminal result goes out below
			}
			p.detach()
			cmd.result <- err
		}
		return false
	case teardownCommand:
		p.logger.Infof("Teardown requested, stopping player loop.")
		return true
	default:
		return false
	}
}

// startSession loads the manifest and wires the sink and surface for a new
// session. The create result stays pending until track preparation finishes,
// so configuration errors reach the creator.
func (p *Player) startSession(cmd createCommand) error {
	p.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:         p.gen,
		id:          cmd.id,
		manifestURL: cmd.manifestURL,
		tracks:      make(map[int]*buffer.Manager),
		events:      make(chan event, 256),
		result:      cmd.result,
		ctx:         ctx,
		cancel:      cancel,
	}
	p.sess = s

	p.logger.Infof("Loading manifest from %s...", cmd.manifestURL)
	data, err := p.fetcher.Fetch(ctx, cmd.manifestURL)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	s.manifest, err = manifest.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	p.logger.Infof("Manifest parsed.")

	surface, err := p.surfaces.Lookup(cmd.id)
	if err != nil {
		return fmt.Errorf("failed to look up playback surface %q: %w", cmd.id, err)
	}
	s.surface = surface

	// Surface and sink callbacks are translated into typed events on the
	// session's own channel, preserving single-threaded processing.
	surface.OnSeeking(p.notify(s, event{kind: evSeeking}))
	surface.OnTimeUpdate(p.notify(s, event{kind: evSeeking}))
	p.snk.OnReady(p.notify(s, event{kind: evSinkReady}))

	if err := p.snk.Attach(surface); err != nil {
		return fmt.Errorf("failed to attach sink: %w", err)
	}

	p.logger.Infof("Attached session %s.", cmd.id)
	return nil
}

// detach tears down the active session: pending deferred events die with the
// session context, track managers release their sink buffers, and a still
// pending create result is resolved so its caller never hangs.
func (p *Player) detach() {
	s := p.sess
	if s == nil {
		return
	}
	p.sess = nil

	s.cancel()
	for _, mgr := range s.tracks {
		if err := mgr.Cleanup(); err != nil {
			p.logger.Warnf("Failed to release track buffer %s: %v", mgr.ID(), err)
		}
	}
	p.snk.Detach()

	if s.result != nil {
		s.result <- ErrSuperseded
		s.result = nil
	}
}

// handleEvent processes one internal event. Events from an earlier
// generation are stale and dropped.
func (p *Player) handleEvent(ev event) error {
	s := p.sess
	if s == nil || ev.gen != s.gen {
		p.logger.Debugf("Dropping stale event (gen %d).", ev.gen)
		return nil
	}

	switch ev.kind {
	case evSinkReady:
		err := p.onSinkReady(s)
		if s.result != nil {
			s.result <- err
			s.result = nil
		}
		if err != nil {
			// Setup failures end the session, not the loop, same as a
			// failed manifest load.
			p.logger.Errorf("Session %s setup failed: %v", s.id, err)
			p.detach()
		}
	case evSeeking:
		p.onSeeking(s)
	case evTryLoad:
		return p.tryLoadSegment(s, ev.track, ev.nextSegment)
	}

	return nil
}

// onSinkReady prepares the session's tracks: declare the presentation
// duration, pick the first video and first audio track, allocate a manager
// per track and append the initialization segments before any media segment
// is requested.
func (p *Player) onSinkReady(s *session) error {
	if d, ok := s.manifest.Duration(); ok {
		p.snk.SetDuration(d.Seconds())
	}

	base, err := manifestBaseURL(s.manifestURL)
	if err != nil {
		return err
	}

	tracks := s.manifest.Tracks()

	var selected []int
	pick := func(match func(manifest.Track) bool) {
		for index, track := range tracks {
			if match(track) && !slices.Contains(selected, index) {
				selected = append(selected, index)
				return
			}
		}
	}
	pick(manifest.Track.IsVideo)
	pick(manifest.Track.IsAudio)

	if len(selected) == 0 {
		return fmt.Errorf("%w: manifest has no video or audio track", manifest.ErrConfiguration)
	}

	// A manager enters s.tracks only once fully built, so a failure partway
	// leaves nothing half-constructed for detach to clean up.
	for _, index := range selected {
		mgr, err := buffer.NewManager(p.logger, p.fetcher, p.snk, tracks[index])
		if err != nil {
			return err
		}
		s.tracks[index] = mgr.WithBaseURL(base)
	}
	p.logger.Infof("Prepared %d track buffers.", len(s.tracks))

	for index, mgr := range s.tracks {
		p.logger.Infof("Loading init segment for track %s.", mgr.ID())
		init, err := mgr.FetchInitSegment(s.ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch init segment for track %s: %w", mgr.ID(), err)
		}
		if err := mgr.AppendInitSegment(init); err != nil {
			return err
		}

		p.enqueue(s, event{kind: evTryLoad, track: index})
	}

	return nil
}

// onSeeking records the new playback position on every track manager and
// requests a load for those whose target is not buffered.
func (p *Player) onSeeking(s *session) {
	t := s.surface.CurrentTime()
	p.logger.Debugf("Playback position now %.2f.", t)

	for index, mgr := range s.tracks {
		if !mgr.CurrentTime(t) {
			p.enqueue(s, event{kind: evTryLoad, track: index})
		}
	}
}

// tryLoadSegment fetches and appends one segment for a track. Fetch failures
// are logged and swallowed; the next seek or timeupdate recovers. Append
// outcomes drive the retry policy: backpressure waits, a wrong guess is
// corrected immediately, success paces the next sequential load, anything
// else is fatal.
func (p *Player) tryLoadSegment(s *session, track, nextSegment int) error {
	mgr, found := s.tracks[track]
	if !found {
		return nil
	}

	data, err := mgr.FetchSegment(s.ctx, nextSegment)
	if err != nil {
		p.logger.Infof("Failed to fetch segment for track %s: %v", mgr.ID(), err)
		return nil
	}

	var outOfRange *buffer.OutOfRangeError

	err = mgr.AppendSegment(data)
	switch {
	case errors.Is(err, sink.ErrQuotaExceeded):
		p.logger.Warnf("Sink quota exceeded on track %s, retrying in %v.", mgr.ID(), p.cfg.QuotaBackoff)
		p.schedule(s, event{kind: evTryLoad, track: track}, p.cfg.QuotaBackoff)
	case errors.As(err, &outOfRange):
		p.logger.Infof("Guessed segment not within range on track %s, fetching %d.", mgr.ID(), outOfRange.NextSegment)
		p.enqueue(s, event{kind: evTryLoad, track: track, nextSegment: outOfRange.NextSegment})
	case err != nil:
		return fmt.Errorf("append failed on track %s: %w", mgr.ID(), err)
	default:
		p.schedule(s, event{kind: evTryLoad, track: track}, p.cfg.PaceInterval)
	}

	return nil
}

// notify returns a callback that pushes ev onto the session's event channel,
// dying silently once the session is gone.
func (p *Player) notify(s *session, ev event) func() {
	ev.gen = s.gen
	return func() {
		select {
		case s.events <- ev:
		case <-s.ctx.Done():
		}
	}
}

// enqueue pushes an event for immediate processing. When the queue is full
// the event takes the deferred path instead; a lost load request would stall
// its track until the next seek.
func (p *Player) enqueue(s *session, ev event) {
	ev.gen = s.gen
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	default:
		p.logger.Warnf("Event queue full, deferring event kind %d for track %d.", ev.kind, ev.track)
		p.schedule(s, ev, p.cfg.PaceInterval)
	}
}

// schedule delivers ev to the session after the delay. The timer dies with
// the session context, so a torn-down session cannot be resurrected by a
// deferred retry.
func (p *Player) schedule(s *session, ev event, delay time.Duration) {
	ev.gen = s.gen

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		select {
		case s.events <- ev:
		case <-s.ctx.Done():
		}
	}()
}

// manifestBaseURL derives the base path segment URLs resolve against by
// dropping the manifest's file name.
func manifestBaseURL(manifestURL string) (*url.URL, error) {
	u, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest url %q: %w", manifestURL, err)
	}

	u.Path = path.Dir(u.Path)
	if u.Path != "/" {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
