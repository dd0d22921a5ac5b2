package pixel

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

type cellKey struct {
	session uuid.UUID
	x, y    int
}

// MemoryRepository keeps pixels in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	pixels map[cellKey]models.Pixel
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		pixels: make(map[cellKey]models.Pixel),
	}
}

func (r *MemoryRepository) Upsert(_ context.Context, req UpsertPixelRequest) (*models.Pixel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cellKey{session: req.SessionID, x: req.X, y: req.Y}
	p, exists := r.pixels[key]
	if !exists {
		p = models.Pixel{
			X:               req.X,
			Y:               req.Y,
			CanvasSessionID: req.SessionID,
			CreatedAt:       req.At,
		}
	}
	p.Color = req.Color
	p.FID = req.FID
	p.Username = req.Username
	p.UpdatedAt = req.At
	r.pixels[key] = p

	out := p
	return &out, nil
}

func (r *MemoryRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Pixel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pixels := make([]models.Pixel, 0)
	for k, p := range r.pixels {
		if k.session == sessionID {
			pixels = append(pixels, p)
		}
	}
	sort.Slice(pixels, func(i, j int) bool {
		if pixels[i].Y != pixels[j].Y {
			return pixels[i].Y < pixels[j].Y
		}
		return pixels[i].X < pixels[j].X
	})
	return pixels, nil
}

func (r *MemoryRepository) CountBySession(_ context.Context, sessionID uuid.UUID) (SessionCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var c SessionCounts
	fids := make(map[int64]struct{})
	for k, p := range r.pixels {
		if k.session != sessionID {
			continue
		}
		c.Pixels++
		fids[p.FID] = struct{}{}
	}
	c.Contributors = int64(len(fids))
	return c, nil
}
