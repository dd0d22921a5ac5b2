// Package api serves the canvas over JSON/HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mcdev12/pixelplace/go/internal/canvas/pixel"
	"github.com/mcdev12/pixelplace/go/internal/canvas/placement"
	"github.com/mcdev12/pixelplace/go/internal/canvas/reconciler"
	"github.com/mcdev12/pixelplace/go/internal/config"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

type SessionService interface {
	GetActiveSession(ctx context.Context) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Count(ctx context.Context) (int64, error)
	Now() time.Time
}

type PixelService interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Pixel, error)
	Counts(ctx context.Context, sessionID uuid.UUID) (pixel.SessionCounts, error)
}

type Placer interface {
	PlacePixel(ctx context.Context, req placement.PlacePixelRequest) (*models.Pixel, error)
}

type ArchiveService interface {
	Mint(ctx context.Context, id uuid.UUID, minterFID *int64) (*models.ArchiveRecord, error)
	Count(ctx context.Context) (int64, error)
	Gallery(ctx context.Context, limit int) ([]models.GalleryEntry, error)
}

type CooldownService interface {
	TimeSinceLastPlacement(ctx context.Context, fid int64, sessionID uuid.UUID) (time.Duration, bool, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (*reconciler.Report, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler serves the canvas endpoints.
type Handler struct {
	canvas    config.Canvas
	sessions  SessionService
	pixels    PixelService
	placer    Placer
	archives  ArchiveService
	cooldowns CooldownService
	sweeper   Sweeper

	realtime http.Handler
	checks   map[string]HealthCheck
}

type Deps struct {
	Canvas    config.Canvas
	Sessions  SessionService
	Pixels    PixelService
	Placer    Placer
	Archives  ArchiveService
	Cooldowns CooldownService
	Sweeper   Sweeper
	// Realtime serves /canvas/ws; optional.
	Realtime http.Handler
	Checks   map[string]HealthCheck
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		canvas:    d.Canvas,
		sessions:  d.Sessions,
		pixels:    d.Pixels,
		placer:    d.Placer,
		archives:  d.Archives,
		cooldowns: d.Cooldowns,
		sweeper:   d.Sweeper,
		realtime:  d.Realtime,
		checks:    d.Checks,
	}
}

type canvasResponse struct {
	Session *models.Session `json:"session"`
	Pixels  []models.Pixel  `json:"pixels"`
}

// GetCanvas returns the active session and its pixels, opening a session if needed.
func (h *Handler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, err := h.sessions.GetActiveSession(ctx)
	if err != nil {
		writeError(w, r, err, "Failed to fetch canvas")
		return
	}
	pixels, err := h.pixels.ListBySession(ctx, s.ID)
	if err != nil {
		writeError(w, r, err, "Failed to fetch canvas")
		return
	}

	writeJSON(w, http.StatusOK, canvasResponse{Session: s, Pixels: nonNil(pixels)})
}

type placePixelBody struct {
	X        json.RawMessage `json:"x"`
	Y        json.RawMessage `json:"y"`
	Color    string          `json:"color"`
	FID      int64           `json:"fid"`
	Username *string         `json:"username"`
}

type placePixelResponse struct {
	Success bool          `json:"success"`
	Pixel   *models.Pixel `json:"pixel"`
}

// PlacePixel handles POST /canvas.
func (h *Handler) PlacePixel(w http.ResponseWriter, r *http.Request) {
	var body placePixelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidation(w, CodeInvalidParameters, "Invalid parameters")
		return
	}

	x, okX := parseCoordinate(body.X)
	y, okY := parseCoordinate(body.Y)
	if !okX || !okY {
		writeValidation(w, CodeInvalidCoordinates, "Coordinates must be integers")
		return
	}

	p, err := h.placer.PlacePixel(r.Context(), placement.PlacePixelRequest{
		X:        x,
		Y:        y,
		Color:    body.Color,
		FID:      body.FID,
		Username: body.Username,
	})
	if err != nil {
		writeError(w, r, err, "Failed to place pixel")
		return
	}

	writeJSON(w, http.StatusOK, placePixelResponse{Success: true, Pixel: p})
}

// parseCoordinate accepts JSON numbers with no fractional part.
func parseCoordinate(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

type currentCanvas struct {
	Pixels       int64  `json:"pixels"`
	Contributors int64  `json:"contributors"`
	Coverage     string `json:"coverage"`
}

type totals struct {
	Sessions int64 `json:"sessions"`
	NFTs     int64 `json:"nfts"`
}

type statsResponse struct {
	ActiveSession *models.Session `json:"activeSession"`
	CurrentCanvas currentCanvas   `json:"currentCanvas"`
	Totals        totals          `json:"totals"`
}

// GetStats handles GET /canvas/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, err := h.sessions.GetActiveSession(ctx)
	if err != nil {
		writeError(w, r, err, "Failed to fetch stats")
		return
	}
	counts, err := h.pixels.Counts(ctx, s.ID)
	if err != nil {
		writeError(w, r, err, "Failed to fetch stats")
		return
	}
	sessions, err := h.sessions.Count(ctx)
	if err != nil {
		writeError(w, r, err, "Failed to fetch stats")
		return
	}
	nfts, err := h.archives.Count(ctx)
	if err != nil {
		writeError(w, r, err, "Failed to fetch stats")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		ActiveSession: s,
		CurrentCanvas: currentCanvas{
			Pixels:       counts.Pixels,
			Contributors: counts.Contributors,
			Coverage:     coverage(counts.Pixels, h.canvas.Cells()),
		},
		Totals: totals{Sessions: sessions, NFTs: nfts},
	})
}

func coverage(pixels int64, cells int) string {
	if cells <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(pixels)/float64(cells)*100)
}

type dimensions struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	PixelSize int `json:"pixelSize"`
}

type snapshotResponse struct {
	SessionID  uuid.UUID      `json:"sessionId"`
	Pixels     []models.Pixel `json:"pixels"`
	Dimensions dimensions     `json:"dimensions"`
}

// GetSnapshot handles GET /canvas/snapshot?sessionId=.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r.URL.Query().Get("sessionId"))
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := h.sessions.Get(ctx, id); err != nil {
		writeError(w, r, err, "Failed to fetch snapshot")
		return
	}
	pixels, err := h.pixels.ListBySession(ctx, id)
	if err != nil {
		writeError(w, r, err, "Failed to fetch snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		SessionID: id,
		Pixels:    nonNil(pixels),
		Dimensions: dimensions{
			Width:     h.canvas.Width,
			Height:    h.canvas.Height,
			PixelSize: h.canvas.PixelSize,
		},
	})
}

type mintBody struct {
	SessionID string `json:"sessionId"`
	MinterFID *int64 `json:"minterFid"`
}

type mintResponse struct {
	Success bool                  `json:"success"`
	NFT     *models.ArchiveRecord `json:"nft"`
	Message string                `json:"message"`
}

// MintSession handles POST /canvas/mint.
func (h *Handler) MintSession(w http.ResponseWriter, r *http.Request) {
	var body mintBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidation(w, CodeInvalidParameters, "Invalid request body")
		return
	}
	id, ok := sessionIDParam(w, body.SessionID)
	if !ok {
		return
	}

	rec, err := h.archives.Mint(r.Context(), id, body.MinterFID)
	if err != nil {
		writeError(w, r, err, "Failed to mint NFT")
		return
	}

	writeJSON(w, http.StatusOK, mintResponse{
		Success: true,
		NFT:     rec,
		Message: "Canvas minted successfully!",
	})
}

type checkSessionsResponse struct {
	Message string `json:"message"`
	*reconciler.Report
}

// CheckSessions runs one reconciliation sweep.
func (h *Handler) CheckSessions(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to check sessions")
		return
	}
	if report.Results == nil {
		report.Results = []reconciler.Result{}
	}

	message := "Sessions checked and processed"
	if report.ExpiredCount == 0 && report.RetriedCount == 0 {
		message = "No expired sessions found"
	}
	writeJSON(w, http.StatusOK, checkSessionsResponse{
		Message: message,
		Report:  report,
	})
}

type galleryResponse struct {
	NFTs []models.GalleryEntry `json:"nfts"`
}

// GetGallery lists minted canvases, newest first.
func (h *Handler) GetGallery(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeValidation(w, CodeInvalidParameters, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.archives.Gallery(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, "Failed to fetch gallery")
		return
	}
	if entries == nil {
		entries = []models.GalleryEntry{}
	}

	writeJSON(w, http.StatusOK, galleryResponse{NFTs: entries})
}

type sessionResponse struct {
	Session          *models.Session `json:"session"`
	TimeRemainingSec int64           `json:"timeRemainingSec"`
	Expired          bool            `json:"expired"`
}

// GetSession handles GET /canvas/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	s, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "Failed to fetch session")
		return
	}

	now := h.sessions.Now()
	writeJSON(w, http.StatusOK, sessionResponse{
		Session:          s,
		TimeRemainingSec: int64(math.Ceil(s.TimeRemaining(now).Seconds())),
		Expired:          s.Expired(now),
	})
}

type cooldownResponse struct {
	FID       int64     `json:"fid"`
	SessionID uuid.UUID `json:"sessionId"`
	Cooldown  int       `json:"cooldown"`
	CanPlace  bool      `json:"canPlace"`
}

// GetCooldown handles GET /canvas/cooldown?fid=, letting a client restore its
// countdown after a reload.
func (h *Handler) GetCooldown(w http.ResponseWriter, r *http.Request) {
	fid, err := strconv.ParseInt(r.URL.Query().Get("fid"), 10, 64)
	if err != nil || fid <= 0 {
		writeValidation(w, CodeInvalidParameters, "fid must be a positive integer")
		return
	}

	ctx := r.Context()
	s, err := h.sessions.GetActiveSession(ctx)
	if err != nil {
		writeError(w, r, err, "Failed to fetch cooldown")
		return
	}
	elapsed, placed, err := h.cooldowns.TimeSinceLastPlacement(ctx, fid, s.ID)
	if err != nil {
		writeError(w, r, err, "Failed to fetch cooldown")
		return
	}

	resp := cooldownResponse{FID: fid, SessionID: s.ID, CanPlace: true}
	if window := h.canvas.Cooldown(); placed && elapsed < window {
		left := min(window-elapsed, window)
		resp.Cooldown = int(math.Ceil(left.Seconds()))
		resp.CanPlace = false
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConfig returns the canvas settings clients render with.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.canvas)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs every registered check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}

func sessionIDParam(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	if raw == "" {
		writeValidation(w, CodeInvalidParameters, "Session ID required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeValidation(w, CodeInvalidParameters, "Invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

func nonNil(pixels []models.Pixel) []models.Pixel {
	if pixels == nil {
		return []models.Pixel{}
	}
	return pixels
}
