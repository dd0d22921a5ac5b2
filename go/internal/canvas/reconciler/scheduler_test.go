package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/mcdev12/pixelplace/go/internal/models"
)

func TestRun_SweepsAtSessionEnd(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The poll interval is longer than the session, so the second sweep
	// can only be triggered by the session's end time.
	f.rec.interval = 2 * sessionLength

	done := make(chan error, 1)
	go func() { done <- f.rec.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	if err := f.clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("scheduler never armed its timer: %v", err)
	}

	first, err := f.sessions.ActiveSession(ctx)
	if err != nil {
		t.Fatalf("first sweep did not open a session: %v", err)
	}

	f.clock.Advance(sessionLength)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, _ := f.sessions.Get(ctx, first.ID)
		if got.Status == models.SessionStatusMinted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session status = %s, want minted after its end time", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestWake_NeverBlocks(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.rec.Wake()
	}
}
