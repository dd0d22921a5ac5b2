package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/pixelplace/go/internal/models"
)

// Event payload types shared between the canvas components and the gateway

type EventType string

const (
	EventTypePixelPlaced    EventType = "PixelPlaced"
	EventTypeSessionStarted EventType = "SessionStarted"
	EventTypeSessionEnded   EventType = "SessionEnded"
	EventTypeSessionMinted  EventType = "SessionMinted"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypePixelPlaced, EventTypeSessionStarted, EventTypeSessionEnded, EventTypeSessionMinted:
		return true
	}
	return false
}

// Envelope is the wire shape of every canvas event, on websockets and on NATS.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType EventType       `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// PixelPlacedPayload is the payload for a PixelPlaced event
type PixelPlacedPayload struct {
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Color    string    `json:"color"`
	FID      int64     `json:"fid"`
	Username *string   `json:"username"`
	PlacedAt time.Time `json:"placed_at"`
}

// SessionStartedPayload is the payload for a SessionStarted event
type SessionStartedPayload struct {
	SessionID string    `json:"session_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// SessionEndedPayload is the payload for a SessionEnded event
type SessionEndedPayload struct {
	SessionID string    `json:"session_id"`
	EndTime   time.Time `json:"end_time"`
}

// SessionMintedPayload is the payload for a SessionMinted event
type SessionMintedPayload struct {
	SessionID       string  `json:"session_id"`
	TokenID         *string `json:"token_id"`
	ContractAddress *string `json:"contract_address"`
}

func newEnvelope(eventType EventType, sessionID uuid.UUID, at time.Time, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		SessionID: sessionID.String(),
		Timestamp: at.UTC(),
		Payload:   data,
	}, nil
}

// PixelPlaced builds the event for a committed placement.
func PixelPlaced(p models.Pixel) (*Envelope, error) {
	return newEnvelope(EventTypePixelPlaced, p.CanvasSessionID, p.UpdatedAt, PixelPlacedPayload{
		X:        p.X,
		Y:        p.Y,
		Color:    p.Color,
		FID:      p.FID,
		Username: p.Username,
		PlacedAt: p.UpdatedAt,
	})
}

// SessionChanged builds the event for a session entering s.Status. Statuses
// clients do not care about (minting) yield nil.
func SessionChanged(s models.Session, at time.Time) (*Envelope, error) {
	switch s.Status {
	case models.SessionStatusActive:
		return newEnvelope(EventTypeSessionStarted, s.ID, at, SessionStartedPayload{
			SessionID: s.ID.String(),
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	case models.SessionStatusEnded:
		return newEnvelope(EventTypeSessionEnded, s.ID, at, SessionEndedPayload{
			SessionID: s.ID.String(),
			EndTime:   s.EndTime,
		})
	case models.SessionStatusMinted:
		return newEnvelope(EventTypeSessionMinted, s.ID, at, SessionMintedPayload{
			SessionID:       s.ID.String(),
			TokenID:         s.NFTTokenID,
			ContractAddress: s.NFTContractAddress,
		})
	default:
		return nil, nil
	}
}

// Decode parses the payload of env into the struct matching its type.
func Decode(env *Envelope) (any, error) {
	var target any
	switch env.EventType {
	case EventTypePixelPlaced:
		target = &PixelPlacedPayload{}
	case EventTypeSessionStarted:
		target = &SessionStartedPayload{}
	case EventTypeSessionEnded:
		target = &SessionEndedPayload{}
	case EventTypeSessionMinted:
		target = &SessionMintedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.EventType, err)
	}
	return target, nil
}
