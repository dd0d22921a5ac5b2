package pixel

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/pixelplace/go/internal/db"
	"github.com/mcdev12/pixelplace/go/internal/db/migrate"
	"github.com/mcdev12/pixelplace/go/internal/dbconfig"
)

func openTestDB(t *testing.T) (*Repository, uuid.UUID) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(context.Background(), dbconfig.Config{URL: dsn, MaxOpenConns: 10, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return NewRepository(conn), insertEndedSession(t, conn)
}

// insertEndedSession adds a session row for the foreign key without touching
// the one-active index.
func insertEndedSession(t *testing.T, conn *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC()
	_, err := conn.Exec(`
		INSERT INTO canvas_sessions (id, start_time, end_time, status)
		VALUES ($1, $2, $3, 'ended')`, id, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("insert session: %v", err)
	}
	return id
}

func TestRepository_UpsertOverwritesInPlace(t *testing.T) {
	repo, session := openTestDB(t)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	if _, err := repo.Upsert(ctx, UpsertPixelRequest{SessionID: session, X: 5, Y: 5, Color: "#E50000", FID: 1, At: t0}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, err := repo.Upsert(ctx, UpsertPixelRequest{
		SessionID: session, X: 5, Y: 5, Color: "#0000EA", FID: 2, Username: strPtr("bob"), At: t0.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if got.Color != "#0000EA" || got.FID != 2 || got.Username == nil || *got.Username != "bob" {
		t.Errorf("Upsert() = %+v, want the second write", got)
	}
	if !got.CreatedAt.Equal(t0) || !got.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("timestamps created=%s updated=%s, want created kept and updated moved", got.CreatedAt, got.UpdatedAt)
	}

	pixels, err := repo.ListBySession(ctx, session)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(pixels) != 1 {
		t.Fatalf("ListBySession() returned %d rows, want 1", len(pixels))
	}
}

func TestRepository_ConcurrentUpsertsOneKey(t *testing.T) {
	repo, session := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const writers = 20
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(fid int64) {
			defer wg.Done()
			_, err := repo.Upsert(ctx, UpsertPixelRequest{
				SessionID: session,
				X:         50,
				Y:         50,
				Color:     fmt.Sprintf("#%06d", fid),
				FID:       fid,
				Username:  strPtr(fmt.Sprintf("user-%d", fid)),
				At:        now,
			})
			if err != nil {
				t.Errorf("fid %d: Upsert() error = %v", fid, err)
			}
		}(int64(i))
	}
	wg.Wait()

	pixels, err := repo.ListBySession(ctx, session)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(pixels) != 1 {
		t.Fatalf("cell has %d rows, want 1", len(pixels))
	}

	// Every field must come from the same write.
	p := pixels[0]
	if p.Color != fmt.Sprintf("#%06d", p.FID) || p.Username == nil || *p.Username != fmt.Sprintf("user-%d", p.FID) {
		t.Errorf("stored pixel mixes writes: %+v (username %v)", p, p.Username)
	}

	counts, err := repo.CountBySession(ctx, session)
	if err != nil {
		t.Fatalf("CountBySession() error = %v", err)
	}
	if counts.Pixels != 1 || counts.Contributors != 1 {
		t.Errorf("CountBySession() = %+v, want 1 pixel by 1 contributor", counts)
	}
}
