package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/pixelplace/go/internal/canvas/archive"
	"github.com/mcdev12/pixelplace/go/internal/canvas/cooldown"
	"github.com/mcdev12/pixelplace/go/internal/canvas/pixel"
	"github.com/mcdev12/pixelplace/go/internal/canvas/placement"
	"github.com/mcdev12/pixelplace/go/internal/canvas/reconciler"
	"github.com/mcdev12/pixelplace/go/internal/canvas/session"
	"github.com/mcdev12/pixelplace/go/internal/config"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

type fixture struct {
	router   http.Handler
	clock    *clockwork.FakeClock
	sessions *session.App
	minter   *flakyMinter
}

type flakyMinter struct {
	stub archive.Minter
	err  error
}

func (m *flakyMinter) Mint(ctx context.Context, s models.Session, pixels []models.Pixel, fid *int64) (*models.MintReceipt, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stub.Mint(ctx, s, pixels, fid)
}

func newFixture(t *testing.T, checks map[string]HealthCheck) *fixture {
	t.Helper()
	cfg := config.Default().Canvas
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))

	sessions := session.NewApp(session.NewMemoryRepository(clock.Now), clock, cfg.SessionDuration())
	pixels := pixel.NewApp(pixel.NewMemoryRepository())
	tracker := cooldown.NewTracker(cooldown.NewMemoryRepository(), clock)
	minter := &flakyMinter{stub: archive.NewStubMinter(clock, "/canvas/snapshot")}
	archives := archive.NewApp(archive.NewMemoryRepository(sessions), sessions, pixels, minter, clock)
	grid := placement.Grid{Width: cfg.Width, Height: cfg.Height, Cooldown: cfg.Cooldown()}

	h := NewHandler(Deps{
		Canvas:    cfg,
		Sessions:  sessions,
		Pixels:    pixels,
		Placer:    placement.NewController(grid, sessions, pixels, tracker, clock),
		Archives:  archives,
		Cooldowns: tracker,
		Sweeper:   reconciler.New(sessions, archives, clock, time.Minute),
		Checks:    checks,
	})
	return &fixture{router: NewRouter(h), clock: clock, sessions: sessions, minter: minter}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (f *fixture) activeSession(t *testing.T) *models.Session {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/canvas", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /canvas: %d %s", rec.Code, rec.Body.String())
	}
	return decode[canvasResponse](t, rec).Session
}

func TestGetCanvasOpensSession(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/canvas", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[canvasResponse](t, rec)
	if body.Session == nil || body.Session.Status != models.SessionStatusActive {
		t.Fatalf("expected an active session, got %+v", body.Session)
	}
	if body.Pixels == nil || len(body.Pixels) != 0 {
		t.Errorf("expected empty pixel list, got %v", body.Pixels)
	}
}

func TestPlacePixelThenFetch(t *testing.T) {
	f := newFixture(t, nil)
	s := f.activeSession(t)

	rec := f.do(t, http.MethodPost, "/canvas", `{"x":5,"y":5,"color":"#E50000","fid":42,"username":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	placed := decode[placePixelResponse](t, rec)
	if !placed.Success || placed.Pixel.CanvasSessionID != s.ID {
		t.Fatalf("unexpected response %+v", placed)
	}

	body := decode[canvasResponse](t, f.do(t, http.MethodGet, "/canvas", ""))
	if len(body.Pixels) != 1 {
		t.Fatalf("expected 1 pixel, got %d", len(body.Pixels))
	}
	p := body.Pixels[0]
	if p.X != 5 || p.Y != 5 || p.Color != "#E50000" {
		t.Errorf("unexpected pixel %+v", p)
	}
}

func TestPlacePixelCooldown(t *testing.T) {
	f := newFixture(t, nil)
	f.activeSession(t)

	if rec := f.do(t, http.MethodPost, "/canvas", `{"x":5,"y":5,"color":"#E50000","fid":42}`); rec.Code != http.StatusOK {
		t.Fatalf("first placement: %d", rec.Code)
	}

	f.clock.Advance(10 * time.Second)
	rec := f.do(t, http.MethodPost, "/canvas", `{"x":6,"y":6,"color":"#0000EA","fid":42}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if body.Cooldown == nil || *body.Cooldown != 20 {
		t.Fatalf("expected cooldown 20, got %+v", body)
	}

	f.clock.Advance(21 * time.Second)
	if rec := f.do(t, http.MethodPost, "/canvas", `{"x":6,"y":6,"color":"#0000EA","fid":42}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after cooldown, got %d", rec.Code)
	}
}

func TestPlacePixelRejections(t *testing.T) {
	tests := []struct {
		name     string
		session  bool
		body     string
		wantCode string
	}{
		{"malformed json", true, `{`, CodeInvalidParameters},
		{"string coordinate", true, `{"x":"5","y":5,"color":"#fff","fid":1}`, CodeInvalidCoordinates},
		{"fractional coordinate", true, `{"x":1.5,"y":5,"color":"#fff","fid":1}`, CodeInvalidCoordinates},
		{"missing coordinate", true, `{"y":5,"color":"#fff","fid":1}`, CodeInvalidCoordinates},
		{"out of range", true, `{"x":100,"y":5,"color":"#fff","fid":1}`, CodeInvalidCoordinates},
		{"missing color", true, `{"x":1,"y":5,"fid":1}`, CodeInvalidParameters},
		{"missing fid", true, `{"x":1,"y":5,"color":"#fff"}`, CodeInvalidParameters},
		{"no active session", false, `{"x":1,"y":5,"color":"#fff","fid":1}`, CodeNoActiveSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.session {
				f.activeSession(t)
			}

			rec := f.do(t, http.MethodPost, "/canvas", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body.String())
			}
			if got := decode[errorBody](t, rec).Code; got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestPlacePixelAcceptsOffPaletteColor(t *testing.T) {
	f := newFixture(t, nil)
	f.activeSession(t)

	rec := f.do(t, http.MethodPost, "/canvas", `{"x":0,"y":0,"color":"rebeccapurple","fid":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture(t, nil)
	f.activeSession(t)

	for i, fid := range []int{1, 2, 3} {
		body := fmt.Sprintf(`{"x":%d,"y":0,"color":"#000000","fid":%d}`, i, fid)
		if rec := f.do(t, http.MethodPost, "/canvas", body); rec.Code != http.StatusOK {
			t.Fatalf("placement %d: %d", i, rec.Code)
		}
	}

	rec := f.do(t, http.MethodGet, "/canvas/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	stats := decode[statsResponse](t, rec)
	if stats.CurrentCanvas.Pixels != 3 || stats.CurrentCanvas.Contributors != 3 {
		t.Errorf("unexpected counts %+v", stats.CurrentCanvas)
	}
	if stats.CurrentCanvas.Coverage != "0.0%" {
		t.Errorf("expected 0.0%% coverage, got %s", stats.CurrentCanvas.Coverage)
	}
	if stats.Totals.Sessions != 1 || stats.Totals.NFTs != 0 {
		t.Errorf("unexpected totals %+v", stats.Totals)
	}
}

func TestCoverage(t *testing.T) {
	tests := []struct {
		pixels int64
		cells  int
		want   string
	}{
		{0, 10000, "0.0%"},
		{50, 10000, "0.5%"},
		{2500, 10000, "25.0%"},
		{10000, 10000, "100.0%"},
		{1, 3, "33.3%"},
		{1, 0, "0.0%"},
	}
	for _, tt := range tests {
		if got := coverage(tt.pixels, tt.cells); got != tt.want {
			t.Errorf("coverage(%d, %d) = %s, want %s", tt.pixels, tt.cells, got, tt.want)
		}
	}
}

func TestGetSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	s := f.activeSession(t)
	f.do(t, http.MethodPost, "/canvas", `{"x":1,"y":2,"color":"#FFFFFF","fid":9}`)

	rec := f.do(t, http.MethodGet, "/canvas/snapshot?sessionId="+s.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	snap := decode[snapshotResponse](t, rec)
	if snap.SessionID != s.ID || len(snap.Pixels) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Dimensions != (dimensions{Width: 100, Height: 100, PixelSize: 10}) {
		t.Errorf("unexpected dimensions %+v", snap.Dimensions)
	}

	if rec := f.do(t, http.MethodGet, "/canvas/snapshot", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing id: expected 400, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/canvas/snapshot?sessionId="+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", rec.Code)
	}
}

func TestMintSession(t *testing.T) {
	f := newFixture(t, nil)
	s := f.activeSession(t)

	rec := f.do(t, http.MethodPost, "/canvas/mint", `{"sessionId":"`+s.ID.String()+`","minterFid":42}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	minted := decode[mintResponse](t, rec)
	if !minted.Success || minted.NFT.CanvasSessionID != s.ID || minted.Message != "Canvas minted successfully!" {
		t.Fatalf("unexpected response %+v", minted)
	}

	got, err := f.sessions.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.SessionStatusMinted {
		t.Errorf("expected minted, got %s", got.Status)
	}

	next := f.activeSession(t)
	if next.ID == s.ID {
		t.Error("expected a successor session after minting")
	}

	rec = f.do(t, http.MethodPost, "/canvas/mint", `{"sessionId":"`+s.ID.String()+`"}`)
	if rec.Code != http.StatusBadRequest || decode[errorBody](t, rec).Code != CodeAlreadyMinted {
		t.Errorf("re-mint: expected 400 already_minted, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMintSessionErrors(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(t, http.MethodPost, "/canvas/mint", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing id: expected 400, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/canvas/mint", `{"sessionId":"`+uuid.NewString()+`"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", rec.Code)
	}

	s := f.activeSession(t)
	f.minter.err = errors.New("mint service down")
	rec := f.do(t, http.MethodPost, "/canvas/mint", `{"sessionId":"`+s.ID.String()+`"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "mint service down") {
		t.Error("dependency error leaked to client")
	}
	got, err := f.sessions.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.SessionStatusEnded {
		t.Errorf("expected rollback to ended, got %s", got.Status)
	}
}

type checkSessionsBody struct {
	Message      string              `json:"message"`
	ExpiredCount int                 `json:"expiredCount"`
	Results      []reconciler.Result `json:"results"`
}

func TestCheckSessions(t *testing.T) {
	f := newFixture(t, nil)
	s := f.activeSession(t)

	f.clock.Advance(6*time.Hour + time.Second)
	rec := f.do(t, http.MethodGet, "/canvas/check-sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decode[checkSessionsBody](t, rec)
	if body.ExpiredCount != 1 || body.Message != "Sessions checked and processed" {
		t.Errorf("unexpected body %+v", body)
	}
	if len(body.Results) != 1 || body.Results[0].SessionID != s.ID || body.Results[0].Status != reconciler.StatusMinted {
		t.Errorf("unexpected results %+v", body.Results)
	}

	rec = f.do(t, http.MethodGet, "/canvas/check-sessions", "")
	body = decode[checkSessionsBody](t, rec)
	if body.ExpiredCount != 0 || body.Results == nil || body.Message != "No expired sessions found" {
		t.Errorf("second sweep: unexpected body %+v", body)
	}
}

func TestGetGallery(t *testing.T) {
	f := newFixture(t, nil)
	s := f.activeSession(t)
	f.do(t, http.MethodPost, "/canvas/mint", `{"sessionId":"`+s.ID.String()+`"}`)

	rec := f.do(t, http.MethodGet, "/canvas/gallery?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	gallery := decode[galleryResponse](t, rec)
	if len(gallery.NFTs) != 1 || gallery.NFTs[0].CanvasSession.ID != s.ID {
		t.Errorf("unexpected gallery %+v", gallery)
	}

	if rec := f.do(t, http.MethodGet, "/canvas/gallery?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", rec.Code)
	}
}

func TestGetSession(t *testing.T) {
	f := newFixture(t, nil)
	s := f.activeSession(t)
	f.clock.Advance(time.Hour)

	rec := f.do(t, http.MethodGet, "/canvas/sessions/"+s.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[sessionResponse](t, rec)
	if body.TimeRemainingSec != int64((5 * time.Hour).Seconds()) || body.Expired {
		t.Errorf("unexpected body %+v", body)
	}

	if rec := f.do(t, http.MethodGet, "/canvas/sessions/nope", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestGetConfig(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/canvas/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	cfg := decode[config.Canvas](t, rec)
	if cfg.Width != 100 || cfg.CooldownSeconds != 30 || len(cfg.Palette) != len(config.DefaultPalette) {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})
	if rec := f.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	f = newFixture(t, map[string]HealthCheck{
		"nats": func(context.Context) error { return errors.New("disconnected") },
	})
	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decode[healthResponse](t, rec); body.Checks["nats"] != "disconnected" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

type cooldownBody struct {
	Cooldown int  `json:"cooldown"`
	CanPlace bool `json:"canPlace"`
}

func TestGetCooldown(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(t, http.MethodGet, "/canvas/cooldown", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing fid: expected 400, got %d", rec.Code)
	}

	body := decode[cooldownBody](t, f.do(t, http.MethodGet, "/canvas/cooldown?fid=42", ""))
	if !body.CanPlace || body.Cooldown != 0 {
		t.Errorf("before placing: unexpected body %+v", body)
	}

	if rec := f.do(t, http.MethodPost, "/canvas", `{"x":1,"y":1,"color":"#000000","fid":42}`); rec.Code != http.StatusOK {
		t.Fatalf("place: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	f.clock.Advance(10 * time.Second)

	body = decode[cooldownBody](t, f.do(t, http.MethodGet, "/canvas/cooldown?fid=42", ""))
	if body.CanPlace || body.Cooldown != 20 {
		t.Errorf("10s after placing: unexpected body %+v", body)
	}

	f.clock.Advance(20 * time.Second)
	body = decode[cooldownBody](t, f.do(t, http.MethodGet, "/canvas/cooldown?fid=42", ""))
	if !body.CanPlace || body.Cooldown != 0 {
		t.Errorf("after the window: unexpected body %+v", body)
	}
}
