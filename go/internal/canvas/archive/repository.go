package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/db"
	"github.com/mcdev12/pixelplace/go/internal/models"
	"github.com/mcdev12/pixelplace/go/internal/sqlutil"
)

const recordColumns = `id, canvas_session_id, token_id, contract_address, ipfs_hash, image_url, minter_fid, metadata, minted_at`

// Repository stores archive records in the minted_nfts table, at most one per session.
type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(conn sqlutil.DBTX) *Repository {
	return &Repository{
		db: conn,
	}
}

func (r *Repository) Create(ctx context.Context, rec models.ArchiveRecord) (*models.ArchiveRecord, error) {
	metadata, err := toNullRawMessage(rec.Metadata)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO minted_nfts (id, canvas_session_id, token_id, contract_address, ipfs_hash, image_url, minter_fid, metadata, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+recordColumns,
		rec.ID, rec.CanvasSessionID, rec.TokenID, rec.ContractAddress, rec.IPFSHash, rec.ImageURL,
		sqlutil.ToSqlInt64(rec.MinterFID), metadata, rec.MintedAt,
	)
	out, err := scanRecord(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, canvas.ErrAlreadyMinted
		}
		return nil, fmt.Errorf("failed to create archive record: %w", err)
	}
	return out, nil
}

func (r *Repository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*models.ArchiveRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM minted_nfts WHERE canvas_session_id = $1`, sessionID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, canvas.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get archive record: %w", err)
	}
	return rec, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM minted_nfts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count archive records: %w", err)
	}
	return n, nil
}

// List returns the newest records first, each joined with its session.
func (r *Repository) List(ctx context.Context, limit int) ([]models.GalleryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT n.id, n.canvas_session_id, n.token_id, n.contract_address, n.ipfs_hash, n.image_url,
		       n.minter_fid, n.metadata, n.minted_at,
		       s.id, s.start_time, s.end_time, s.status, s.nft_token_id, s.nft_contract_address, s.created_at
		FROM minted_nfts n
		JOIN canvas_sessions s ON s.id = n.canvas_session_id
		ORDER BY n.minted_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive records: %w", err)
	}
	defer rows.Close()

	entries := make([]models.GalleryEntry, 0)
	for rows.Next() {
		var (
			e         models.GalleryEntry
			minterFID sql.NullInt64
			metadata  pqtype.NullRawMessage
			status    string
			tokenID   sql.NullString
			contract  sql.NullString
		)
		err := rows.Scan(
			&e.ID, &e.CanvasSessionID, &e.TokenID, &e.ContractAddress, &e.IPFSHash, &e.ImageURL,
			&minterFID, &metadata, &e.MintedAt,
			&e.CanvasSession.ID, &e.CanvasSession.StartTime, &e.CanvasSession.EndTime, &status,
			&tokenID, &contract, &e.CanvasSession.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive record: %w", err)
		}
		e.MinterFID = sqlutil.FromSqlInt64Ptr(minterFID)
		if e.Metadata, err = fromNullRawMessage(metadata); err != nil {
			return nil, err
		}
		e.CanvasSession.Status = models.SessionStatus(status)
		e.CanvasSession.NFTTokenID = sqlutil.FromSqlStringPtr(tokenID)
		e.CanvasSession.NFTContractAddress = sqlutil.FromSqlStringPtr(contract)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archive records: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.ArchiveRecord, error) {
	var (
		rec       models.ArchiveRecord
		minterFID sql.NullInt64
		metadata  pqtype.NullRawMessage
	)
	err := row.Scan(&rec.ID, &rec.CanvasSessionID, &rec.TokenID, &rec.ContractAddress, &rec.IPFSHash,
		&rec.ImageURL, &minterFID, &metadata, &rec.MintedAt)
	if err != nil {
		return nil, err
	}
	rec.MinterFID = sqlutil.FromSqlInt64Ptr(minterFID)
	if rec.Metadata, err = fromNullRawMessage(metadata); err != nil {
		return nil, err
	}
	return &rec, nil
}

func toNullRawMessage(m *models.ArchiveMetrics) (pqtype.NullRawMessage, error) {
	if m == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal archive metadata: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func fromNullRawMessage(raw pqtype.NullRawMessage) (*models.ArchiveMetrics, error) {
	if !raw.Valid {
		return nil, nil
	}
	var m models.ArchiveMetrics
	if err := json.Unmarshal(raw.RawMessage, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive metadata: %w", err)
	}
	return &m, nil
}
