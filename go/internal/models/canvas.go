package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle state of a canvas session.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEnded   SessionStatus = "ended"
	SessionStatusMinting SessionStatus = "minting"
	SessionStatusMinted  SessionStatus = "minted"
)

// CanAdvanceTo reports whether next directly follows s in the session lifecycle.
// Minting may fall back to ended when archival fails.
func (s SessionStatus) CanAdvanceTo(next SessionStatus) bool {
	switch s {
	case SessionStatusActive:
		return next == SessionStatusEnded
	case SessionStatusEnded:
		return next == SessionStatusMinting
	case SessionStatusMinting:
		return next == SessionStatusMinted || next == SessionStatusEnded
	default:
		return false
	}
}

// Session is one time-boxed canvas epoch.
type Session struct {
	ID                 uuid.UUID     `json:"id"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	Status             SessionStatus `json:"status"`
	NFTTokenID         *string       `json:"nft_token_id"`
	NFTContractAddress *string       `json:"nft_contract_address"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Expired reports whether the session window has closed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.EndTime.After(now)
}

// TimeRemaining returns the time left in the window, never negative.
func (s *Session) TimeRemaining(now time.Time) time.Duration {
	if d := s.EndTime.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Pixel is the colour occupying one cell of a session's grid.
type Pixel struct {
	X               int       `json:"x"`
	Y               int       `json:"y"`
	Color           string    `json:"color"`
	FID             int64     `json:"fid"`
	Username        *string   `json:"username"`
	CanvasSessionID uuid.UUID `json:"canvas_session_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CooldownEntry is a user's last successful placement within a session.
type CooldownEntry struct {
	FID             int64     `json:"fid"`
	CanvasSessionID uuid.UUID `json:"canvas_session_id"`
	LastPixelTime   time.Time `json:"last_pixel_time"`
}

// ArchiveRecord is the permanent artifact minted from a finished session.
type ArchiveRecord struct {
	ID              uuid.UUID       `json:"id"`
	CanvasSessionID uuid.UUID       `json:"canvas_session_id"`
	TokenID         string          `json:"token_id"`
	ContractAddress string          `json:"contract_address"`
	IPFSHash        string          `json:"ipfs_hash"`
	ImageURL        string          `json:"image_url"`
	MinterFID       *int64          `json:"minter_fid"`
	Metadata        *ArchiveMetrics `json:"metadata,omitempty"`
	MintedAt        time.Time       `json:"minted_at"`
}

// ArchiveMetrics summarises the canvas at the moment it was archived.
type ArchiveMetrics struct {
	Pixels       int `json:"pixels"`
	Contributors int `json:"contributors"`
}

// GalleryEntry pairs an archive record with the session it came from.
type GalleryEntry struct {
	ArchiveRecord
	CanvasSession Session `json:"canvas_session"`
}

// MintReceipt is what an archival backend returns for a minted canvas.
type MintReceipt struct {
	TokenID         string `json:"token_id"`
	ContractAddress string `json:"contract_address"`
	IPFSHash        string `json:"ipfs_hash"`
	ImageURL        string `json:"image_url"`
}
