package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

type entryKey struct {
	session uuid.UUID
	fid     int64
}

// MemoryRepository keeps cooldown entries in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[entryKey]models.CooldownEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[entryKey]models.CooldownEntry),
	}
}

func (r *MemoryRepository) Get(_ context.Context, sessionID uuid.UUID, fid int64) (*models.CooldownEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[entryKey{session: sessionID, fid: fid}]
	if !ok {
		return nil, canvas.ErrNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, entry models.CooldownEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entryKey{session: entry.CanvasSessionID, fid: entry.FID}] = entry
	return nil
}

func (r *MemoryRepository) Claim(_ context.Context, entry models.CooldownEntry, window time.Duration) (*models.CooldownEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey{session: entry.CanvasSessionID, fid: entry.FID}
	if held, ok := r.entries[key]; ok && entry.LastPixelTime.Sub(held.LastPixelTime) < window {
		return &held, false, nil
	}
	r.entries[key] = entry
	return &entry, true, nil
}

func (r *MemoryRepository) Release(_ context.Context, entry models.CooldownEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entryKey{session: entry.CanvasSessionID, fid: entry.FID}
	if held, ok := r.entries[key]; ok && held.LastPixelTime.Equal(entry.LastPixelTime) {
		delete(r.entries, key)
	}
	return nil
}
