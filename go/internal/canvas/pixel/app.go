package pixel

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// PixelRepository defines what the pixel app layer needs from storage.
type PixelRepository interface {
	Upsert(ctx context.Context, req UpsertPixelRequest) (*models.Pixel, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Pixel, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (SessionCounts, error)
}

// App is the pixel store.
type App struct {
	repo PixelRepository
}

func NewApp(repo PixelRepository) *App {
	return &App{
		repo: repo,
	}
}

// Upsert writes one cell, last writer wins.
func (a *App) Upsert(ctx context.Context, req UpsertPixelRequest) (*models.Pixel, error) {
	p, err := a.repo.Upsert(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to place pixel: %w", err)
	}
	return p, nil
}

// ListBySession returns every placed cell of a session, row-major.
func (a *App) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Pixel, error) {
	pixels, err := a.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pixels: %w", err)
	}
	return pixels, nil
}

// CountBySession returns the number of placed cells in a session.
func (a *App) CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	c, err := a.repo.CountBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count pixels: %w", err)
	}
	return c.Pixels, nil
}

// CountContributors returns the number of distinct users owning a cell in a session.
func (a *App) CountContributors(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	c, err := a.repo.CountBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count contributors: %w", err)
	}
	return c.Contributors, nil
}

// Counts returns pixel and contributor counts in one read.
func (a *App) Counts(ctx context.Context, sessionID uuid.UUID) (SessionCounts, error) {
	c, err := a.repo.CountBySession(ctx, sessionID)
	if err != nil {
		return SessionCounts{}, fmt.Errorf("failed to count pixels: %w", err)
	}
	return c, nil
}
