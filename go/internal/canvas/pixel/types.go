package pixel

import (
	"time"

	"github.com/google/uuid"
)

// UpsertPixelRequest writes one cell of a session's grid.
type UpsertPixelRequest struct {
	SessionID uuid.UUID
	X         int
	Y         int
	Color     string
	FID       int64
	Username  *string
	At        time.Time
}

// SessionCounts summarises a session's grid.
type SessionCounts struct {
	Pixels       int64
	Contributors int64
}
