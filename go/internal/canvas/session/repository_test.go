package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/db"
	"github.com/mcdev12/pixelplace/go/internal/db/migrate"
	"github.com/mcdev12/pixelplace/go/internal/dbconfig"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

func openTestDB(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(context.Background(), dbconfig.Config{URL: dsn, MaxOpenConns: 5, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(`UPDATE canvas_sessions SET status = 'ended' WHERE status = 'active'`)
		_ = conn.Close()
	})
	// Park any session left active by earlier runs.
	if _, err := conn.Exec(`UPDATE canvas_sessions SET status = 'ended' WHERE status = 'active'`); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return NewRepository(conn)
}

func TestRepository_PartialUniqueIndex(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := repo.Create(ctx, CreateSessionRequest{ID: uuid.New(), StartTime: now, EndTime: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err = repo.Create(ctx, CreateSessionRequest{ID: uuid.New(), StartTime: now, EndTime: now.Add(time.Hour)})
	if !errors.Is(err, ErrActiveExists) {
		t.Fatalf("second Create() error = %v, want ErrActiveExists", err)
	}

	active, err := repo.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive() error = %v", err)
	}
	if active.ID != first.ID {
		t.Errorf("GetActive() = %s, want %s", active.ID, first.ID)
	}
}

func TestRepository_ConditionalUpdate(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s, err := repo.Create(ctx, CreateSessionRequest{ID: uuid.New(), StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)})
	if err != nil {
		t.Fatal(err)
	}

	expired, err := repo.ListExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != s.ID {
		t.Errorf("ListExpired() = %v, want [%s]", expired, s.ID)
	}

	closeReq := UpdateStatusRequest{From: models.SessionStatusActive, To: models.SessionStatusEnded}
	if _, err := repo.UpdateStatus(ctx, s.ID, closeReq); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, s.ID, closeReq); !errors.Is(err, ErrStatusMismatch) {
		t.Errorf("repeated UpdateStatus() error = %v, want ErrStatusMismatch", err)
	}

	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, canvas.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}
