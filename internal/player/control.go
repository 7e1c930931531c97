package player

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded resolves a pending create whose session was replaced or torn
// down before setup completed.
var ErrSuperseded = errors.New("session superseded before setup completed")

type command interface {
	isCommand()
}

type createCommand struct {
	id          string
	manifestURL string
	result      chan error
}

func (createCommand) isCommand() {}

type teardownCommand struct{}

func (teardownCommand) isCommand() {}

// Control is the session control surface handed to the layer driving the
// player. One create is in flight at a time; a concurrent second call waits
// its turn rather than corrupting the first's result channel.
type Control struct {
	mu   sync.Mutex
	cmds chan<- command
}

// Create starts a playback session for the surface identified by id using
// the manifest at manifestURL, replacing any active session. It returns the
// session's terminal setup result: nil once the tracks are prepared and
// their initialization segments appended, or the first fatal error.
func (c *Control) Create(ctx context.Context, id, manifestURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(chan error, 1)

	select {
	case c.cmds <- createCommand{id: id, manifestURL: manifestURL, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy tears down the active session and stops the player loop. It never
// blocks and calling it on an already-stopped player is a no-op.
func (c *Control) Destroy() {
	select {
	case c.cmds <- teardownCommand{}:
	default:
	}
}

// Close closes the command channel, which also stops the player loop. Call
// it at most once.
func (c *Control) Close() {
	close(c.cmds)
}
