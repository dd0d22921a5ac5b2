package cooldown

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/models"
	"github.com/mcdev12/pixelplace/go/internal/sqlutil"
)

// Repository stores cooldown entries in the user_cooldowns table.
type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(conn sqlutil.DBTX) *Repository {
	return &Repository{
		db: conn,
	}
}

func (r *Repository) Get(ctx context.Context, sessionID uuid.UUID, fid int64) (*models.CooldownEntry, error) {
	e := models.CooldownEntry{FID: fid, CanvasSessionID: sessionID}
	err := r.db.QueryRowContext(ctx, `
		SELECT last_pixel_time
		FROM user_cooldowns
		WHERE canvas_session_id = $1 AND fid = $2`, sessionID, fid).Scan(&e.LastPixelTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, canvas.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cooldown: %w", err)
	}
	return &e, nil
}

func (r *Repository) Upsert(ctx context.Context, entry models.CooldownEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_cooldowns (canvas_session_id, fid, last_pixel_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (canvas_session_id, fid) DO UPDATE
		SET last_pixel_time = EXCLUDED.last_pixel_time`,
		entry.CanvasSessionID, entry.FID, entry.LastPixelTime)
	if err != nil {
		return fmt.Errorf("failed to upsert cooldown: %w", err)
	}
	return nil
}

// Claim relies on the row lock taken by ON CONFLICT: a concurrent claim for the
// same user waits for ours to commit, then sees our timestamp in the WHERE.
func (r *Repository) Claim(ctx context.Context, entry models.CooldownEntry, window time.Duration) (*models.CooldownEntry, bool, error) {
	var stored time.Time
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO user_cooldowns (canvas_session_id, fid, last_pixel_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (canvas_session_id, fid) DO UPDATE
		SET last_pixel_time = EXCLUDED.last_pixel_time
		WHERE user_cooldowns.last_pixel_time <= EXCLUDED.last_pixel_time - make_interval(secs => $4::double precision)
		RETURNING last_pixel_time`,
		entry.CanvasSessionID, entry.FID, entry.LastPixelTime, window.Seconds()).Scan(&stored)
	if err == nil {
		entry.LastPixelTime = stored
		return &entry, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim cooldown: %w", err)
	}

	held, err := r.Get(ctx, entry.CanvasSessionID, entry.FID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return held, false, nil
}

func (r *Repository) Release(ctx context.Context, entry models.CooldownEntry) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM user_cooldowns
		WHERE canvas_session_id = $1 AND fid = $2 AND last_pixel_time = $3`,
		entry.CanvasSessionID, entry.FID, entry.LastPixelTime)
	if err != nil {
		return fmt.Errorf("failed to release cooldown: %w", err)
	}
	return nil
}
