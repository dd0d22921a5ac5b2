package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// maxCreateAttempts bounds the read-create-reread loop in GetActiveSession.
const maxCreateAttempts = 3

// SessionRepository defines what the session app layer needs from storage.
// Create must fail with ErrActiveExists when another session is active, and
// UpdateStatus must be a conditional write that fails with ErrStatusMismatch.
type SessionRepository interface {
	Create(ctx context.Context, req CreateSessionRequest) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetActive(ctx context.Context) (*models.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*models.Session, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.Session, error)
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error)
	Count(ctx context.Context) (int64, error)
}

// Notifier is told about session lifecycle changes. Delivery is best-effort.
type Notifier interface {
	SessionChanged(ctx context.Context, s models.Session)
}

// App is the session registry.
type App struct {
	repo     SessionRepository
	clock    clockwork.Clock
	duration time.Duration
	notifier Notifier
}

// NewApp creates a registry that opens sessions of the given duration.
func NewApp(repo SessionRepository, clock clockwork.Clock, duration time.Duration) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:     repo,
		clock:    clock,
		duration: duration,
	}
}

// SetNotifier registers the observer for lifecycle changes.
func (a *App) SetNotifier(n Notifier) {
	a.notifier = n
}

// GetActiveSession returns the active session, opening a new one when none exists.
// Concurrent callers that lose the creation race read back the winner's session.
func (a *App) GetActiveSession(ctx context.Context) (*models.Session, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		s, err := a.repo.GetActive(ctx)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, canvas.ErrNotFound) {
			return nil, fmt.Errorf("failed to get active session: %w", err)
		}

		now := a.clock.Now()
		created, err := a.repo.Create(ctx, CreateSessionRequest{
			ID:        uuid.New(),
			StartTime: now,
			EndTime:   now.Add(a.duration),
		})
		if err == nil {
			log.Info().
				Str("session_id", created.ID.String()).
				Time("end_time", created.EndTime).
				Msg("opened canvas session")
			a.notify(ctx, created)
			return created, nil
		}
		if !errors.Is(err, ErrActiveExists) {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		log.Debug().Int("attempt", attempt+1).Msg("lost session creation race, re-reading active session")
	}
	return nil, fmt.Errorf("failed to settle active session after %d attempts", maxCreateAttempts)
}

// ActiveSession returns the active session without creating one.
func (a *App) ActiveSession(ctx context.Context) (*models.Session, error) {
	s, err := a.repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return nil, canvas.ErrNoActiveSession
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}

// Get retrieves a session by ID.
func (a *App) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := a.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Count returns the number of sessions ever opened.
func (a *App) Count(ctx context.Context) (int64, error) {
	n, err := a.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// Now returns the registry's clock reading.
func (a *App) Now() time.Time {
	return a.clock.Now()
}

// ListExpired returns active sessions whose window closed at or before now.
func (a *App) ListExpired(ctx context.Context, now time.Time) ([]models.Session, error) {
	sessions, err := a.repo.ListExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return sessions, nil
}

// ListAwaitingArchival returns ended sessions that have not been minted yet,
// including ones whose earlier archival attempt was rolled back.
func (a *App) ListAwaitingArchival(ctx context.Context) ([]models.Session, error) {
	sessions, err := a.repo.ListByStatus(ctx, models.SessionStatusEnded)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended sessions: %w", err)
	}
	return sessions, nil
}

// CloseSession moves an active session to ended.
func (a *App) CloseSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.transition(ctx, id, UpdateStatusRequest{
		From: models.SessionStatusActive,
		To:   models.SessionStatusEnded,
	})
}

// BeginMinting moves an ended session to minting.
func (a *App) BeginMinting(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.transition(ctx, id, UpdateStatusRequest{
		From: models.SessionStatusEnded,
		To:   models.SessionStatusMinting,
	})
}

// CompleteMinting moves a minting session to minted and records the archive reference.
func (a *App) CompleteMinting(ctx context.Context, id uuid.UUID, ref ArchiveRef) (*models.Session, error) {
	return a.transition(ctx, id, UpdateStatusRequest{
		From: models.SessionStatusMinting,
		To:   models.SessionStatusMinted,
		Ref:  &ref,
	})
}

// RollbackMinting returns a minting session to ended after a failed archival.
func (a *App) RollbackMinting(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.transition(ctx, id, UpdateStatusRequest{
		From: models.SessionStatusMinting,
		To:   models.SessionStatusEnded,
	})
}

func (a *App) transition(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*models.Session, error) {
	if !req.From.CanAdvanceTo(req.To) {
		return nil, fmt.Errorf("%w: %s -> %s", canvas.ErrInvalidTransition, req.From, req.To)
	}

	s, err := a.repo.UpdateStatus(ctx, id, req)
	if err == nil {
		log.Info().
			Str("session_id", id.String()).
			Str("from", string(req.From)).
			Str("to", string(req.To)).
			Msg("session status changed")
		a.notify(ctx, s)
		return s, nil
	}
	if !errors.Is(err, ErrStatusMismatch) {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}

	// The conditional update matched nothing: report why.
	current, getErr := a.repo.Get(ctx, id)
	if getErr != nil {
		if errors.Is(getErr, canvas.ErrNotFound) {
			return nil, fmt.Errorf("session %s: %w", id, canvas.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", getErr)
	}
	if current.Status == models.SessionStatusMinted && req.To != models.SessionStatusEnded {
		return nil, fmt.Errorf("session %s: %w", id, canvas.ErrAlreadyMinted)
	}
	return nil, fmt.Errorf("%w: session %s is %s, expected %s",
		canvas.ErrInvalidTransition, id, current.Status, req.From)
}

func (a *App) notify(ctx context.Context, s *models.Session) {
	if a.notifier == nil || s == nil {
		return
	}
	a.notifier.SessionChanged(ctx, *s)
}
