package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/db"
	"github.com/mcdev12/pixelplace/go/internal/models"
	"github.com/mcdev12/pixelplace/go/internal/sqlutil"
)

// activeIndex is the partial unique index allowing one active session.
const activeIndex = "canvas_sessions_one_active"

const sessionColumns = `id, start_time, end_time, status, nft_token_id, nft_contract_address, created_at`

// Repository stores sessions in Postgres. The partial unique index
// activeIndex keeps at most one row in status active.
type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(conn sqlutil.DBTX) *Repository {
	return &Repository{
		db: conn,
	}
}

func (r *Repository) Create(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO canvas_sessions (id, start_time, end_time, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING `+sessionColumns,
		req.ID, req.StartTime, req.EndTime,
	)
	s, err := scanSession(row)
	if err != nil {
		if db.IsUniqueViolation(err) && db.ConstraintName(err) == activeIndex {
			return nil, ErrActiveExists
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM canvas_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, canvas.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *Repository) GetActive(ctx context.Context) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM canvas_sessions WHERE status = 'active'`)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, canvas.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*models.Session, error) {
	var tokenID, contract sql.NullString
	if req.Ref != nil {
		tokenID = sqlutil.ToSqlString(&req.Ref.TokenID)
		contract = sqlutil.ToSqlString(&req.Ref.ContractAddress)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE canvas_sessions
		SET status = $3,
		    nft_token_id = COALESCE($4, nft_token_id),
		    nft_contract_address = COALESCE($5, nft_contract_address)
		WHERE id = $1 AND status = $2
		RETURNING `+sessionColumns,
		id, string(req.From), string(req.To), tokenID, contract,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusMismatch
		}
		if db.IsUniqueViolation(err) && db.ConstraintName(err) == activeIndex {
			return nil, ErrActiveExists
		}
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	return s, nil
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM canvas_sessions
		WHERE status = 'active' AND end_time <= $1
		ORDER BY end_time`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// ListByStatus returns sessions in status, oldest end time first.
func (r *Repository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM canvas_sessions
		WHERE status = $1
		ORDER BY end_time`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvas_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		s        models.Session
		status   string
		tokenID  sql.NullString
		contract sql.NullString
	)
	if err := row.Scan(&s.ID, &s.StartTime, &s.EndTime, &status, &tokenID, &contract, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	s.NFTTokenID = sqlutil.FromSqlStringPtr(tokenID)
	s.NFTContractAddress = sqlutil.FromSqlStringPtr(contract)
	return &s, nil
}
