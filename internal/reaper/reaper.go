package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/sessions"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultRetention = time.Hour
)

// Reaper is the scheduled sweep that repairs stale room and session state:
// rooms that ended long enough ago but still carry live flags or sessions
// stuck short of a terminal state.
type Reaper struct {
	store     *store.Store
	sessions  *sessions.Tracker
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	nowFn     func() time.Time
}

func New(st *store.Store, tracker *sessions.Tracker, interval, retention time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Reaper{
		store:     st,
		sessions:  tracker,
		interval:  interval,
		retention: retention,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "retention", r.retention)

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		}
	}
}

// Sweep processes every room ended before the retention cutoff. Rooms are
// handled independently: one malformed room is logged and skipped, never
// aborting the rest of the sweep.
func (r *Reaper) Sweep() {
	now := r.nowFn()
	cutoff := now.Add(-r.retention)

	rooms, err := r.store.RoomsEndedBefore(cutoff)
	if err != nil {
		r.logger.Error("reaper: listing ended rooms failed", "error", err)
		return
	}

	repaired := 0
	for i := range rooms {
		if err := r.reapRoom(&rooms[i], now); err != nil {
			r.logger.Warn("reaper: room sweep failed",
				"room", rooms[i].Code, "error", err)
			continue
		}
		repaired++
	}

	if len(rooms) > 0 {
		r.logger.Info("reaper sweep finished",
			"candidates", len(rooms), "repaired", repaired)
	}
}

func (r *Reaper) reapRoom(room *models.Room, now time.Time) error {
	return r.store.Transaction(func(tx *store.Store) error {
		tracker := r.sessions.WithStore(tx)

		lingering, err := tracker.NonTerminalByRoom(room.ID)
		if err != nil {
			return err
		}
		if len(lingering) > 0 {
			r.logger.Info("reaper: disconnecting lingering sessions",
				"room", room.Code, "count", len(lingering))
			if err := tracker.DisconnectAll(room.ID, now); err != nil {
				return err
			}
		}

		if room.Active {
			room.Active = false
			return tx.SaveRoom(room)
		}
		return nil
	})
}

// SetNowFunc overrides the clock. Tests only.
func (r *Reaper) SetNowFunc(fn func() time.Time) {
	r.nowFn = fn
}
