// Package preview runs the timed preview an anonymous visitor gets for
// gated content.
package preview

import (
	"context"
	"sync"
	"time"

	"membership-portal/internal/domain/access"
)

type State string

const (
	NotStarted State = "not_started"
	Playing    State = "playing"
	Ended      State = "ended"
)

// Player is whatever is rendering the media. Stop is called once when an
// anonymous preview runs out.
type Player interface {
	Stop()
}

type PlayerFunc func()

func (f PlayerFunc) Stop() { f() }

// AfterFunc schedules f after d and returns a func that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfter(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type Controller struct {
	mu            sync.Mutex
	state         State
	authenticated bool
	window        time.Duration
	startedAt     time.Time
	gen           int
	cancelTimer   func() bool
	done          chan struct{}

	player Player
	now    func() time.Time
	after  AfterFunc
}

type Option func(*Controller)

func WithClock(now func() time.Time, after AfterFunc) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
		if after != nil {
			c.after = after
		}
	}
}

func NewController(player Player, opts ...Option) *Controller {
	c := &Controller{
		state:  NotStarted,
		player: player,
		now:    time.Now,
		after:  realAfter,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount starts playback for an allowed decision. For an anonymous preview
// the countdown runs from startedAt (now when zero) for window, so a session
// resumed after a reload keeps its original deadline.
func (c *Controller) Mount(d access.Decision, authenticated bool, window time.Duration, startedAt time.Time) State {
	c.mu.Lock()
	if c.state != NotStarted || d == access.Denied {
		state := c.state
		c.mu.Unlock()
		return state
	}

	now := c.now()
	if startedAt.IsZero() || startedAt.After(now) {
		startedAt = now
	}
	c.gen++
	c.state = Playing
	c.authenticated = authenticated
	c.window = window
	c.startedAt = startedAt
	c.done = make(chan struct{})

	if d != access.Preview || authenticated {
		c.mu.Unlock()
		return Playing
	}

	remaining := window - now.Sub(startedAt)
	if remaining <= 0 {
		stop := c.endLocked()
		c.mu.Unlock()
		stop()
		return Ended
	}

	gen := c.gen
	c.cancelTimer = c.after(remaining, func() { c.expire(gen) })
	c.mu.Unlock()
	return Playing
}

func (c *Controller) expire(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.state != Playing || c.authenticated {
		c.mu.Unlock()
		return
	}
	stop := c.endLocked()
	c.mu.Unlock()
	stop()
}

// endLocked moves to Ended and returns the player callback to run once the
// lock is released.
func (c *Controller) endLocked() func() {
	c.state = Ended
	c.cancelTimer = nil
	close(c.done)
	player := c.player
	return func() {
		if player != nil {
			player.Stop()
		}
	}
}

// Authenticate marks the viewer as logged in. A running countdown is
// cancelled and the session will not end on its own.
func (c *Controller) Authenticate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = true
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
}

// Unmount resets the controller to NotStarted.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
	if c.state == Playing {
		close(c.done)
	}
	c.gen++
	c.state = NotStarted
	c.authenticated = false
	c.startedAt = time.Time{}
	c.window = 0
	c.done = make(chan struct{})
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining is the time left on an anonymous preview. It is zero when no
// countdown applies.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Playing || c.authenticated || c.cancelTimer == nil {
		return 0
	}
	left := c.window - c.now().Sub(c.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Watch blocks until the preview ends, the controller is unmounted or ctx
// is done, and returns the state at that point.
func (c *Controller) Watch(ctx context.Context) State {
	c.mu.Lock()
	done := c.done
	state := c.state
	c.mu.Unlock()

	if state != Playing {
		return state
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	return c.State()
}
