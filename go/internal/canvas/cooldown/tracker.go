// Package cooldown tracks each user's last placement per session.
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// CooldownRepository defines what the tracker needs from storage.
// Get returns canvas.ErrNotFound when the user has not placed in the session.
//
// Claim stores entry only if the stored placement is at least window older
// than entry.LastPixelTime, as one atomic step. When refused it returns the
// stored entry, or nil if it disappeared in between. Release deletes entry if
// it is still the stored one.
type CooldownRepository interface {
	Get(ctx context.Context, sessionID uuid.UUID, fid int64) (*models.CooldownEntry, error)
	Upsert(ctx context.Context, entry models.CooldownEntry) error
	Claim(ctx context.Context, entry models.CooldownEntry, window time.Duration) (held *models.CooldownEntry, claimed bool, err error)
	Release(ctx context.Context, entry models.CooldownEntry) error
}

// claimAttempts bounds retries when a refusing entry vanishes before it can be read.
const claimAttempts = 3

// Tracker answers cooldown questions against a repository and a clock.
type Tracker struct {
	repo  CooldownRepository
	clock clockwork.Clock
}

func NewTracker(repo CooldownRepository, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		repo:  repo,
		clock: clock,
	}
}

// TimeSinceLastPlacement returns the time elapsed since the user's last
// placement in the session. ok is false when there is no prior placement.
func (t *Tracker) TimeSinceLastPlacement(ctx context.Context, fid int64, sessionID uuid.UUID) (elapsed time.Duration, ok bool, err error) {
	entry, err := t.repo.Get(ctx, sessionID, fid)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read cooldown: %w", err)
	}
	return t.clock.Since(entry.LastPixelTime), true, nil
}

// RecordPlacement stores at as the user's last placement in the session.
func (t *Tracker) RecordPlacement(ctx context.Context, fid int64, sessionID uuid.UUID, at time.Time) error {
	err := t.repo.Upsert(ctx, models.CooldownEntry{
		FID:             fid,
		CanvasSessionID: sessionID,
		LastPixelTime:   at,
	})
	if err != nil {
		return fmt.Errorf("failed to record placement: %w", err)
	}
	return nil
}

// Claim records at as the user's placement unless the previous one is less
// than window old, in which case it returns a *canvas.CooldownError. The
// check and the write are one atomic repository call, so concurrent requests
// from one user cannot both pass.
func (t *Tracker) Claim(ctx context.Context, fid int64, sessionID uuid.UUID, at time.Time, window time.Duration) error {
	entry := models.CooldownEntry{
		FID:             fid,
		CanvasSessionID: sessionID,
		LastPixelTime:   at,
	}

	var held *models.CooldownEntry
	for attempt := 0; attempt < claimAttempts; attempt++ {
		var (
			claimed bool
			err     error
		)
		held, claimed, err = t.repo.Claim(ctx, entry, window)
		if err != nil {
			return fmt.Errorf("failed to claim cooldown: %w", err)
		}
		if claimed {
			return nil
		}
		if held != nil {
			break
		}
	}

	return &canvas.CooldownError{Remaining: remaining(held, at, window)}
}

// Release undoes a Claim made at at, so a placement that failed after
// claiming does not cost the user a cooldown window.
func (t *Tracker) Release(ctx context.Context, fid int64, sessionID uuid.UUID, at time.Time) error {
	err := t.repo.Release(ctx, models.CooldownEntry{
		FID:             fid,
		CanvasSessionID: sessionID,
		LastPixelTime:   at,
	})
	if err != nil {
		return fmt.Errorf("failed to release cooldown: %w", err)
	}
	return nil
}

// remaining is the wait left at at, kept within (0, window].
func remaining(held *models.CooldownEntry, at time.Time, window time.Duration) time.Duration {
	if held == nil {
		return window
	}
	left := window - at.Sub(held.LastPixelTime)
	switch {
	case left > window:
		// stored placement is ahead of our clock
		return window
	case left <= 0:
		// refused by a store whose own expiry has not caught up yet
		return time.Second
	}
	return left
}
