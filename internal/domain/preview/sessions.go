package preview

import (
	"context"
	"fmt"
	"math"
	"time"

	"membership-portal/internal/domain/access"
	"membership-portal/internal/domain/content"

	"go.uber.org/zap"
)

// Tracker remembers when a viewer first started previewing an item.
type Tracker interface {
	FirstSeen(ctx context.Context, key string, now time.Time, ttl time.Duration) (time.Time, error)
	Seen(ctx context.Context, key string) (time.Time, bool, error)
}

// endedRetention is how long an ended preview stays ended for the same
// viewer before a new one may start.
const endedRetention = 24 * time.Hour

type Snapshot struct {
	State            State           `json:"state"`
	Decision         access.Decision `json:"decision"`
	RemainingSeconds int             `json:"remaining_seconds"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
}

// Sessions derives preview state for HTTP requests. Controllers are per
// connection; the start time lives in the tracker so reloads resume.
type Sessions struct {
	tracker Tracker
	enforce bool
	log     *zap.Logger
	now     func() time.Time
}

// NewSessions builds the request-side view of previews. With enforce off or
// no tracker, the countdown is left to the client.
func NewSessions(tracker Tracker, enforce bool, log *zap.Logger) *Sessions {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sessions{tracker: tracker, enforce: enforce && tracker != nil, log: log, now: time.Now}
}

func trackerKey(viewer string, itemID uint) string {
	return fmt.Sprintf("preview:%s:%d", viewer, itemID)
}

// Start mounts a preview for viewer and returns its state.
func (s *Sessions) Start(ctx context.Context, viewer string, item *content.Item, d access.Decision, authenticated bool) (Snapshot, error) {
	now := s.now()
	if d != access.Preview || authenticated || !s.enforce || viewer == "" {
		return s.snapshot(now, item, d, authenticated, now, d != access.Denied), nil
	}

	startedAt, err := s.tracker.FirstSeen(ctx, trackerKey(viewer, item.ID), now, item.PreviewWindow()+endedRetention)
	if err != nil {
		return Snapshot{}, fmt.Errorf("preview.Start: %w", err)
	}
	snap := s.snapshot(now, item, d, authenticated, startedAt, true)
	if snap.State == Ended {
		s.log.Debug("preview already used", zap.String("viewer", viewer), zap.Uint("item_id", item.ID))
	}
	return snap, nil
}

// Status reports the viewer's preview without starting one.
func (s *Sessions) Status(ctx context.Context, viewer string, item *content.Item, d access.Decision, authenticated bool) (Snapshot, error) {
	now := s.now()
	if d != access.Preview || authenticated {
		return s.snapshot(now, item, d, authenticated, now, d != access.Denied), nil
	}
	if !s.enforce || viewer == "" {
		return s.snapshot(now, item, d, authenticated, time.Time{}, false), nil
	}

	startedAt, ok, err := s.tracker.Seen(ctx, trackerKey(viewer, item.ID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("preview.Status: %w", err)
	}
	return s.snapshot(now, item, d, authenticated, startedAt, ok), nil
}

// StartedAt returns when the viewer's countdown began, if it has.
func (s *Sessions) StartedAt(ctx context.Context, viewer string, itemID uint) (time.Time, bool, error) {
	if !s.enforce || viewer == "" {
		return time.Time{}, false, nil
	}
	return s.tracker.Seen(ctx, trackerKey(viewer, itemID))
}

func (s *Sessions) snapshot(now time.Time, item *content.Item, d access.Decision, authenticated bool, startedAt time.Time, started bool) Snapshot {
	snap := Snapshot{Decision: d}
	switch {
	case d == access.Denied:
		snap.State = NotStarted
		return snap
	case !started:
		snap.State = NotStarted
		if d == access.Preview && !authenticated {
			snap.RemainingSeconds = int(item.PreviewWindow().Seconds())
		}
		return snap
	}

	at := startedAt
	snap.StartedAt = &at
	snap.State = Playing
	if d != access.Preview || authenticated {
		return snap
	}

	left := item.PreviewWindow() - now.Sub(startedAt)
	if left <= 0 {
		snap.State = Ended
		return snap
	}
	snap.RemainingSeconds = int(math.Ceil(left.Seconds()))
	return snap
}
