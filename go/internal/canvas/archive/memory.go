package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// SessionLookup resolves the session a record belongs to for gallery listings.
type SessionLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// MemoryRepository keeps archive records in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]models.ArchiveRecord
	sessions SessionLookup
}

func NewMemoryRepository(sessions SessionLookup) *MemoryRepository {
	return &MemoryRepository{
		records:  make(map[uuid.UUID]models.ArchiveRecord),
		sessions: sessions,
	}
}

func (r *MemoryRepository) Create(_ context.Context, rec models.ArchiveRecord) (*models.ArchiveRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.CanvasSessionID]; exists {
		return nil, canvas.ErrAlreadyMinted
	}
	r.records[rec.CanvasSessionID] = rec
	out := rec
	return &out, nil
}

func (r *MemoryRepository) GetBySession(_ context.Context, sessionID uuid.UUID) (*models.ArchiveRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[sessionID]
	if !ok {
		return nil, canvas.ErrNotFound
	}
	return &rec, nil
}

func (r *MemoryRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.records)), nil
}

func (r *MemoryRepository) List(ctx context.Context, limit int) ([]models.GalleryEntry, error) {
	r.mu.RLock()
	records := make([]models.ArchiveRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].MintedAt.After(records[j].MintedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	entries := make([]models.GalleryEntry, 0, len(records))
	for _, rec := range records {
		s, err := r.sessions.Get(ctx, rec.CanvasSessionID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.GalleryEntry{ArchiveRecord: rec, CanvasSession: *s})
	}
	return entries, nil
}
