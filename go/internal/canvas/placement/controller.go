// Package placement validates and executes single pixel placements.
package placement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/canvas/pixel"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

// maxColorLength bounds the colour string; any value is accepted up to it.
const maxColorLength = 64

// SessionProvider returns the active session without creating one.
type SessionProvider interface {
	ActiveSession(ctx context.Context) (*models.Session, error)
}

type PixelWriter interface {
	Upsert(ctx context.Context, req pixel.UpsertPixelRequest) (*models.Pixel, error)
}

// CooldownTracker reserves a user's placement atomically. Claim returns a
// *canvas.CooldownError while the user is still cooling down.
type CooldownTracker interface {
	Claim(ctx context.Context, fid int64, sessionID uuid.UUID, at time.Time, window time.Duration) error
	Release(ctx context.Context, fid int64, sessionID uuid.UUID, at time.Time) error
}

// Notifier receives every committed placement. Delivery is best-effort.
type Notifier interface {
	PixelPlaced(ctx context.Context, p models.Pixel)
}

// PlacePixelRequest is one placement attempt.
type PlacePixelRequest struct {
	X        int
	Y        int
	Color    string
	FID      int64
	Username *string
}

// Grid holds the bounds and rate limit a Controller enforces.
type Grid struct {
	Width    int
	Height   int
	Cooldown time.Duration
}

// Controller runs the placement checks in order and commits the pixel.
type Controller struct {
	grid      Grid
	sessions  SessionProvider
	pixels    PixelWriter
	cooldowns CooldownTracker
	notifier  Notifier
	clock     clockwork.Clock
}

func NewController(grid Grid, sessions SessionProvider, pixels PixelWriter, cooldowns CooldownTracker, clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		grid:      grid,
		sessions:  sessions,
		pixels:    pixels,
		cooldowns: cooldowns,
		clock:     clock,
	}
}

// SetNotifier registers the observer for committed placements.
func (c *Controller) SetNotifier(n Notifier) {
	c.notifier = n
}

// PlacePixel validates req and writes it to the active session. The first
// failing check wins; nothing is written unless every check passes, and a
// failed pixel write gives the cooldown claim back.
func (c *Controller) PlacePixel(ctx context.Context, req PlacePixelRequest) (*models.Pixel, error) {
	if req.X < 0 || req.X >= c.grid.Width || req.Y < 0 || req.Y >= c.grid.Height {
		return nil, fmt.Errorf("%w: (%d, %d) outside %dx%d grid",
			canvas.ErrInvalidCoordinates, req.X, req.Y, c.grid.Width, c.grid.Height)
	}

	color := strings.TrimSpace(req.Color)
	if color == "" || len(color) > maxColorLength {
		return nil, fmt.Errorf("%w: color is required", canvas.ErrInvalidParameters)
	}
	if req.FID <= 0 {
		return nil, fmt.Errorf("%w: fid must be positive", canvas.ErrInvalidParameters)
	}
	username := normalizeUsername(req.Username)

	session, err := c.sessions.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}

	// Claiming before the pixel write closes the window in which concurrent
	// requests from one user could all pass the check.
	now := c.clock.Now()
	if err := c.cooldowns.Claim(ctx, req.FID, session.ID, now, c.grid.Cooldown); err != nil {
		if errors.Is(err, canvas.ErrCooldownActive) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to check cooldown: %w", err)
	}

	p, err := c.pixels.Upsert(ctx, pixel.UpsertPixelRequest{
		SessionID: session.ID,
		X:         req.X,
		Y:         req.Y,
		Color:     color,
		FID:       req.FID,
		Username:  username,
		At:        now,
	})
	if err != nil {
		if relErr := c.cooldowns.Release(ctx, req.FID, session.ID, now); relErr != nil {
			log.Error().
				Err(relErr).
				Int64("fid", req.FID).
				Str("session_id", session.ID.String()).
				Msg("pixel write failed and cooldown claim was not released")
		}
		return nil, fmt.Errorf("failed to place pixel: %w", err)
	}

	log.Debug().
		Int("x", p.X).
		Int("y", p.Y).
		Str("color", p.Color).
		Int64("fid", p.FID).
		Str("session_id", session.ID.String()).
		Msg("pixel placed")

	if c.notifier != nil {
		c.notifier.PixelPlaced(ctx, *p)
	}
	return p, nil
}

func normalizeUsername(u *string) *string {
	if u == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*u)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
