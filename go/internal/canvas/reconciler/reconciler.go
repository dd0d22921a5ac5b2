// Package reconciler closes expired canvas sessions, archives them and makes
// sure a successor session is active. Sweeps are idempotent and may overlap,
// within one process or across several.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// Result statuses reported per session.
const (
	StatusMinted  = "minted"
	StatusEnded   = "ended"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// SessionRegistry is what a sweep needs from the session registry.
type SessionRegistry interface {
	GetActiveSession(ctx context.Context) (*models.Session, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.Session, error)
	ListAwaitingArchival(ctx context.Context) ([]models.Session, error)
	CloseSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Archiver mints one ended session, rolling it back to ended on failure.
type Archiver interface {
	ArchiveSession(ctx context.Context, id uuid.UUID, minterFID *int64) (*models.ArchiveRecord, error)
}

// Result is the outcome of one session within a sweep.
type Result struct {
	SessionID uuid.UUID `json:"sessionId"`
	Status    string    `json:"status"`
	TokenID   string    `json:"tokenId,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Report summarises one sweep.
type Report struct {
	ExpiredCount  int             `json:"expiredCount"`
	RetriedCount  int             `json:"retriedCount"`
	Results       []Result        `json:"results"`
	ActiveSession *models.Session `json:"activeSession,omitempty"`
	RetryError    string          `json:"retryError,omitempty"`
}

// Reconciler runs sweeps on demand or on a schedule.
type Reconciler struct {
	sessions   SessionRegistry
	archiver   Archiver
	clock      clockwork.Clock
	interval   time.Duration
	wakeCh     chan struct{}
	instanceID string

	// sessions being processed by a sweep in this process
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

// New creates a reconciler whose scheduler polls at least every interval.
func New(sessions SessionRegistry, archiver Archiver, clock clockwork.Clock, interval time.Duration) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		sessions:   sessions,
		archiver:   archiver,
		clock:      clock,
		interval:   interval,
		wakeCh:     make(chan struct{}, 1),
		instanceID: uuid.New().String()[:8],
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Sweep closes and archives every expired session, retries archival of
// sessions left ended by earlier failures, then ensures an active session
// exists. Per-session failures are reported in the results, not returned.
func (r *Reconciler) Sweep(ctx context.Context) (*Report, error) {
	now := r.clock.Now()
	expired, err := r.sessions.ListExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ExpiredCount: len(expired),
		Results:      make([]Result, 0, len(expired)),
	}
	seen := make(map[uuid.UUID]bool, len(expired))

	for _, s := range expired {
		seen[s.ID] = true
		report.Results = append(report.Results, r.closeAndArchive(ctx, s.ID))
	}

	pending, err := r.sessions.ListAwaitingArchival(ctx)
	if err != nil {
		log.Error().Err(err).Str("instance", r.instanceID).Msg("failed to list sessions awaiting archival")
		report.RetryError = err.Error()
	}
	for _, s := range pending {
		if seen[s.ID] {
			continue
		}
		report.RetriedCount++
		report.Results = append(report.Results, r.archive(ctx, s.ID))
	}

	active, err := r.sessions.GetActiveSession(ctx)
	if err != nil {
		return report, err
	}
	report.ActiveSession = active

	log.Info().
		Str("instance", r.instanceID).
		Int("expired", report.ExpiredCount).
		Int("retried", report.RetriedCount).
		Str("active_session_id", active.ID.String()).
		Msg("sweep complete")
	return report, nil
}

func (r *Reconciler) closeAndArchive(ctx context.Context, id uuid.UUID) Result {
	if !r.claim(id) {
		return Result{SessionID: id, Status: StatusSkipped}
	}
	defer r.release(id)

	if _, err := r.sessions.CloseSession(ctx, id); err != nil {
		if isAlreadyHandled(err) {
			log.Debug().Str("session_id", id.String()).Msg("session already closed by another sweep")
			return Result{SessionID: id, Status: StatusSkipped}
		}
		log.Error().Err(err).Str("session_id", id.String()).Msg("failed to close expired session")
		return Result{SessionID: id, Status: StatusError, Error: err.Error()}
	}
	return r.archiveClaimed(ctx, id)
}

func (r *Reconciler) archive(ctx context.Context, id uuid.UUID) Result {
	if !r.claim(id) {
		return Result{SessionID: id, Status: StatusSkipped}
	}
	defer r.release(id)
	return r.archiveClaimed(ctx, id)
}

func (r *Reconciler) archiveClaimed(ctx context.Context, id uuid.UUID) Result {
	rec, err := r.archiver.ArchiveSession(ctx, id, nil)
	switch {
	case err == nil:
		return Result{SessionID: id, Status: StatusMinted, TokenID: rec.TokenID}
	case isAlreadyHandled(err):
		return Result{SessionID: id, Status: StatusSkipped}
	default:
		log.Error().Err(err).Str("session_id", id.String()).Msg("archival failed, will retry on next sweep")
		return Result{SessionID: id, Status: StatusEnded, Error: err.Error()}
	}
}

// isAlreadyHandled reports whether err means a concurrent sweep got there first.
func isAlreadyHandled(err error) bool {
	return errors.Is(err, canvas.ErrInvalidTransition) ||
		errors.Is(err, canvas.ErrAlreadyMinted) ||
		errors.Is(err, canvas.ErrNotFound)
}

func (r *Reconciler) claim(id uuid.UUID) bool {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if r.inFlight[id] {
		log.Debug().Str("session_id", id.String()).Str("instance", r.instanceID).Msg("skipping session already in flight")
		return false
	}
	r.inFlight[id] = true
	return true
}

func (r *Reconciler) release(id uuid.UUID) {
	r.inFlightMu.Lock()
	delete(r.inFlight, id)
	r.inFlightMu.Unlock()
}
