package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// Repository-level outcomes the App turns into canvas errors.
var (
	// ErrActiveExists is returned by Create when the store already holds an active session.
	ErrActiveExists = errors.New("an active session already exists")
	// ErrStatusMismatch is returned by UpdateStatus when no row had the expected status.
	ErrStatusMismatch = errors.New("session status did not match")
)

// CreateSessionRequest describes a new active session.
type CreateSessionRequest struct {
	ID        uuid.UUID
	StartTime time.Time
	EndTime   time.Time
}

// ArchiveRef is the external reference recorded when a session is minted.
type ArchiveRef struct {
	TokenID         string
	ContractAddress string
}

// UpdateStatusRequest is a conditional status change: it applies only while the
// session is still in From.
type UpdateStatusRequest struct {
	From models.SessionStatus
	To   models.SessionStatus
	Ref  *ArchiveRef
}
