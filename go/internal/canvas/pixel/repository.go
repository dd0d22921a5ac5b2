package pixel

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/pixelplace/go/internal/models"
	"github.com/mcdev12/pixelplace/go/internal/sqlutil"
)

const pixelColumns = `x, y, color, fid, username, canvas_session_id, created_at, updated_at`

// Repository stores pixels in Postgres, one row per (session, x, y).
type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(conn sqlutil.DBTX) *Repository {
	return &Repository{
		db: conn,
	}
}

// Upsert inserts the cell or overwrites it in place. Concurrent writers to the
// same key serialise on the primary key; the last to commit wins.
func (r *Repository) Upsert(ctx context.Context, req UpsertPixelRequest) (*models.Pixel, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO pixels (canvas_session_id, x, y, color, fid, username, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (canvas_session_id, x, y) DO UPDATE
		SET color = EXCLUDED.color,
		    fid = EXCLUDED.fid,
		    username = EXCLUDED.username,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+pixelColumns,
		req.SessionID, req.X, req.Y, req.Color, req.FID, sqlutil.ToSqlString(req.Username), req.At,
	)
	p, err := scanPixel(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pixel: %w", err)
	}
	return p, nil
}

func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Pixel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pixelColumns+`
		FROM pixels
		WHERE canvas_session_id = $1
		ORDER BY y, x`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pixels: %w", err)
	}
	defer rows.Close()

	pixels := make([]models.Pixel, 0)
	for rows.Next() {
		p, err := scanPixel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pixel: %w", err)
		}
		pixels = append(pixels, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pixels: %w", err)
	}
	return pixels, nil
}

func (r *Repository) CountBySession(ctx context.Context, sessionID uuid.UUID) (SessionCounts, error) {
	var c SessionCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT fid)
		FROM pixels
		WHERE canvas_session_id = $1`, sessionID).Scan(&c.Pixels, &c.Contributors)
	if err != nil {
		return SessionCounts{}, fmt.Errorf("failed to count pixels: %w", err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPixel(row scanner) (*models.Pixel, error) {
	var (
		p        models.Pixel
		username sql.NullString
	)
	if err := row.Scan(&p.X, &p.Y, &p.Color, &p.FID, &username, &p.CanvasSessionID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Username = sqlutil.FromSqlStringPtr(username)
	return &p, nil
}
