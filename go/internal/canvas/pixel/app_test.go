package pixel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func TestUpsert_LastWriterWins(t *testing.T) {
	app := NewApp(NewMemoryRepository())
	ctx := context.Background()
	session := uuid.New()
	t0 := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	first, err := app.Upsert(ctx, UpsertPixelRequest{SessionID: session, X: 5, Y: 5, Color: "#E50000", FID: 1, At: t0})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	second, err := app.Upsert(ctx, UpsertPixelRequest{
		SessionID: session, X: 5, Y: 5, Color: "#0000EA", FID: 2, Username: strPtr("bob"), At: t0.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if second.Color != "#0000EA" || second.FID != 2 {
		t.Errorf("overwrite = %+v, want colour #0000EA by fid 2", second)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on overwrite: %s -> %s", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %s, want %s", second.UpdatedAt, t0.Add(time.Minute))
	}

	pixels, err := app.ListBySession(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if len(pixels) != 1 {
		t.Fatalf("ListBySession() returned %d pixels, want 1", len(pixels))
	}
}

func TestUpsert_ConcurrentSameCellKeepsOneConsistentRecord(t *testing.T) {
	repo := NewMemoryRepository()
	app := NewApp(repo)
	ctx := context.Background()
	session := uuid.New()

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = app.Upsert(ctx, UpsertPixelRequest{
				SessionID: session, X: 1, Y: 1,
				Color: fmt.Sprintf("#%06d", i), FID: int64(i), At: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	pixels, _ := app.ListBySession(ctx, session)
	if len(pixels) != 1 {
		t.Fatalf("got %d records for one cell, want 1", len(pixels))
	}
	// colour and fid must come from the same write
	p := pixels[0]
	if want := fmt.Sprintf("#%06d", p.FID); p.Color != want {
		t.Errorf("mixed record: fid %d with colour %s", p.FID, p.Color)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	app := NewApp(NewMemoryRepository())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, _ = app.Upsert(ctx, UpsertPixelRequest{SessionID: a, X: 0, Y: 0, Color: "#FFFFFF", FID: 1})
	_, _ = app.Upsert(ctx, UpsertPixelRequest{SessionID: a, X: 1, Y: 0, Color: "#FFFFFF", FID: 1})
	_, _ = app.Upsert(ctx, UpsertPixelRequest{SessionID: a, X: 2, Y: 0, Color: "#FFFFFF", FID: 2})
	_, _ = app.Upsert(ctx, UpsertPixelRequest{SessionID: b, X: 0, Y: 0, Color: "#000000", FID: 3})

	tests := []struct {
		session          uuid.UUID
		wantPixels       int64
		wantContributors int64
	}{
		{a, 3, 2},
		{b, 1, 1},
		{uuid.New(), 0, 0},
	}
	for _, tt := range tests {
		n, err := app.CountBySession(ctx, tt.session)
		if err != nil {
			t.Fatal(err)
		}
		c, err := app.CountContributors(ctx, tt.session)
		if err != nil {
			t.Fatal(err)
		}
		if n != tt.wantPixels || c != tt.wantContributors {
			t.Errorf("session %s: pixels=%d contributors=%d, want %d/%d",
				tt.session, n, c, tt.wantPixels, tt.wantContributors)
		}
	}

	empty, err := app.ListBySession(ctx, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListBySession(unknown) = %v, want empty non-nil slice", empty)
	}
}

func TestListBySession_RowMajorOrder(t *testing.T) {
	app := NewApp(NewMemoryRepository())
	ctx := context.Background()
	s := uuid.New()

	for _, xy := range [][2]int{{3, 1}, {0, 2}, {1, 1}, {9, 0}} {
		_, _ = app.Upsert(ctx, UpsertPixelRequest{SessionID: s, X: xy[0], Y: xy[1], Color: "#222222", FID: 7})
	}
	pixels, _ := app.ListBySession(ctx, s)
	want := [][2]int{{9, 0}, {1, 1}, {3, 1}, {0, 2}}
	for i, p := range pixels {
		if p.X != want[i][0] || p.Y != want[i][1] {
			t.Errorf("pixel %d = (%d,%d), want (%d,%d)", i, p.X, p.Y, want[i][0], want[i][1])
		}
	}
}
