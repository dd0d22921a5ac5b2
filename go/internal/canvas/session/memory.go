package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// MemoryRepository keeps sessions in process memory. A single mutex serialises
// every check-and-write, which stands in for the partial unique index.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.Session
	now      func() time.Time
}

func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		sessions: make(map[uuid.UUID]*models.Session),
		now:      now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, req CreateSessionRequest) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.Status == models.SessionStatusActive {
			return nil, ErrActiveExists
		}
	}

	s := &models.Session{
		ID:        req.ID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    models.SessionStatusActive,
		CreatedAt: r.now(),
	}
	r.sessions[s.ID] = s
	out := *s
	return &out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, canvas.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (r *MemoryRepository) GetActive(_ context.Context) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.Status == models.SessionStatusActive {
			out := *s
			return &out, nil
		}
	}
	return nil, canvas.ErrNotFound
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, req UpdateStatusRequest) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.Status != req.From {
		return nil, ErrStatusMismatch
	}
	if req.To == models.SessionStatusActive {
		for _, other := range r.sessions {
			if other.ID != id && other.Status == models.SessionStatusActive {
				return nil, ErrActiveExists
			}
		}
	}

	s.Status = req.To
	if req.Ref != nil {
		tokenID, contract := req.Ref.TokenID, req.Ref.ContractAddress
		s.NFTTokenID = &tokenID
		s.NFTContractAddress = &contract
	}
	out := *s
	return &out, nil
}

func (r *MemoryRepository) ListExpired(_ context.Context, now time.Time) ([]models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Session
	for _, s := range r.sessions {
		if s.Status == models.SessionStatusActive && s.Expired(now) {
			out = append(out, *s)
		}
	}
	sortByEndTime(out)
	return out, nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status models.SessionStatus) ([]models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Session
	for _, s := range r.sessions {
		if s.Status == status {
			out = append(out, *s)
		}
	}
	sortByEndTime(out)
	return out, nil
}

func (r *MemoryRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.sessions)), nil
}

func sortByEndTime(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].EndTime.Before(sessions[j].EndTime)
	})
}
