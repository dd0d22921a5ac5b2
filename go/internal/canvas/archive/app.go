// Package archive mints closed canvas sessions into permanent records.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/canvas/session"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

const (
	DefaultGalleryLimit = 20
	MaxGalleryLimit     = 100
)

// ArchiveRepository defines what the archive app layer needs from storage.
// Create must fail with canvas.ErrAlreadyMinted for a session that already has a record.
type ArchiveRepository interface {
	Create(ctx context.Context, rec models.ArchiveRecord) (*models.ArchiveRecord, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*models.ArchiveRecord, error)
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, limit int) ([]models.GalleryEntry, error)
}

// SessionRegistry is the subset of the session registry archival drives.
type SessionRegistry interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetActiveSession(ctx context.Context) (*models.Session, error)
	CloseSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	BeginMinting(ctx context.Context, id uuid.UUID) (*models.Session, error)
	CompleteMinting(ctx context.Context, id uuid.UUID, ref session.ArchiveRef) (*models.Session, error)
	RollbackMinting(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

type PixelReader interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Pixel, error)
}

// App is the archival gateway.
type App struct {
	repo     ArchiveRepository
	sessions SessionRegistry
	pixels   PixelReader
	minter   Minter
	clock    clockwork.Clock
}

func NewApp(repo ArchiveRepository, sessions SessionRegistry, pixels PixelReader, minter Minter, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:     repo,
		sessions: sessions,
		pixels:   pixels,
		minter:   minter,
		clock:    clock,
	}
}

// ArchiveSession mints an ended session: ended -> minting -> minted. Any
// failure after minting began rolls the session back to ended so a later
// attempt can retry it.
func (a *App) ArchiveSession(ctx context.Context, id uuid.UUID, minterFID *int64) (*models.ArchiveRecord, error) {
	s, err := a.sessions.BeginMinting(ctx, id)
	if err != nil {
		return nil, err
	}

	rec, err := a.mint(ctx, *s, minterFID)
	if err != nil {
		if _, rbErr := a.sessions.RollbackMinting(ctx, id); rbErr != nil {
			log.Error().
				Err(rbErr).
				Str("session_id", id.String()).
				Msg("failed to roll back minting session")
			return nil, errors.Join(err, fmt.Errorf("failed to roll back minting: %w", rbErr))
		}
		log.Warn().
			Err(err).
			Str("session_id", id.String()).
			Msg("archival failed, session returned to ended")
		return nil, err
	}

	log.Info().
		Str("session_id", id.String()).
		Str("token_id", rec.TokenID).
		Msg("session minted")
	return rec, nil
}

func (a *App) mint(ctx context.Context, s models.Session, minterFID *int64) (*models.ArchiveRecord, error) {
	// A record from an attempt that died before CompleteMinting is reused.
	rec, err := a.repo.GetBySession(ctx, s.ID)
	switch {
	case err == nil:
		log.Info().Str("session_id", s.ID.String()).Msg("reusing existing archive record")
	case errors.Is(err, canvas.ErrNotFound):
		rec, err = a.createRecord(ctx, s, minterFID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to check archive record: %w", err)
	}

	if _, err := a.sessions.CompleteMinting(ctx, s.ID, session.ArchiveRef{
		TokenID:         rec.TokenID,
		ContractAddress: rec.ContractAddress,
	}); err != nil {
		return nil, fmt.Errorf("failed to complete minting: %w", err)
	}
	return rec, nil
}

func (a *App) createRecord(ctx context.Context, s models.Session, minterFID *int64) (*models.ArchiveRecord, error) {
	pixels, err := a.pixels.ListBySession(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pixels: %w", err)
	}

	receipt, err := a.minter.Mint(ctx, s, pixels, minterFID)
	if err != nil {
		return nil, fmt.Errorf("failed to mint: %w", err)
	}

	rec, err := a.repo.Create(ctx, models.ArchiveRecord{
		ID:              uuid.New(),
		CanvasSessionID: s.ID,
		TokenID:         receipt.TokenID,
		ContractAddress: receipt.ContractAddress,
		IPFSHash:        receipt.IPFSHash,
		ImageURL:        receipt.ImageURL,
		MinterFID:       minterFID,
		Metadata:        metricsFor(pixels),
		MintedAt:        a.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save archive record: %w", err)
	}
	return rec, nil
}

// Mint force-archives one session. An active session is closed first. After
// a successful mint, or a failed one for a session closed here, the registry
// is asked for an active session so the canvas always has a successor.
func (a *App) Mint(ctx context.Context, id uuid.UUID, minterFID *int64) (*models.ArchiveRecord, error) {
	s, err := a.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	closed := false
	switch s.Status {
	case models.SessionStatusMinted:
		return nil, fmt.Errorf("session %s: %w", id, canvas.ErrAlreadyMinted)
	case models.SessionStatusMinting:
		return nil, fmt.Errorf("%w: session %s is already minting", canvas.ErrInvalidTransition, id)
	case models.SessionStatusActive:
		if _, err := a.sessions.CloseSession(ctx, id); err != nil && !errors.Is(err, canvas.ErrInvalidTransition) {
			return nil, fmt.Errorf("failed to close session: %w", err)
		}
		closed = true
	}

	rec, err := a.ArchiveSession(ctx, id, minterFID)
	if err == nil || closed {
		a.ensureSuccessor(ctx)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *App) ensureSuccessor(ctx context.Context) {
	if _, err := a.sessions.GetActiveSession(ctx); err != nil {
		log.Error().Err(err).Msg("failed to ensure successor session after mint")
	}
}

// GetBySession returns the archive record of a session.
func (a *App) GetBySession(ctx context.Context, sessionID uuid.UUID) (*models.ArchiveRecord, error) {
	rec, err := a.repo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get archive record: %w", err)
	}
	return rec, nil
}

// Count returns the number of minted sessions.
func (a *App) Count(ctx context.Context) (int64, error) {
	n, err := a.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count archive records: %w", err)
	}
	return n, nil
}

// Gallery lists minted canvases newest first. limit is clamped to
// [1, MaxGalleryLimit]; zero means DefaultGalleryLimit.
func (a *App) Gallery(ctx context.Context, limit int) ([]models.GalleryEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultGalleryLimit
	case limit > MaxGalleryLimit:
		limit = MaxGalleryLimit
	}
	entries, err := a.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery: %w", err)
	}
	return entries, nil
}

func metricsFor(pixels []models.Pixel) *models.ArchiveMetrics {
	fids := make(map[int64]struct{}, len(pixels))
	for _, p := range pixels {
		fids[p.FID] = struct{}{}
	}
	return &models.ArchiveMetrics{
		Pixels:       len(pixels),
		Contributors: len(fids),
	}
}
