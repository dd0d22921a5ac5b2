package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/pixelplace/go/internal/dbconfig"
)

// Snapshot mirrors the GET /canvas/snapshot response
type Snapshot struct {
	SessionID string `json:"sessionId"`
	Pixels    []struct {
		X        int     `json:"x"`
		Y        int     `json:"y"`
		Color    string  `json:"color"`
		FID      int64   `json:"fid"`
		Username *string `json:"username"`
	} `json:"pixels"`
}

func main() {
	path := flag.String("file", "go/internal/assets/canvas_snapshot.json", "snapshot JSON to load")
	target := flag.String("session", "", "session id to seed into (default: the active session)")
	flag.Parse()

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	sessionID := *target
	if sessionID == "" {
		err := pool.QueryRow(ctx, `SELECT id::text FROM canvas_sessions WHERE status = 'active'`).Scan(&sessionID)
		if errors.Is(err, pgx.ErrNoRows) {
			fmt.Fprintln(os.Stderr, "no active session; open the canvas once or pass -session")
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "find active session: %v\n", err)
			os.Exit(1)
		}
	}

	// 3) Upsert in one batch; later entries for the same cell win
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, p := range snap.Pixels {
		batch.Queue(`
            INSERT INTO pixels (canvas_session_id, x, y, color, fid, username, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
            ON CONFLICT (canvas_session_id, x, y) DO UPDATE
              SET color = EXCLUDED.color,
                  fid = EXCLUDED.fid,
                  username = EXCLUDED.username,
                  updated_at = EXCLUDED.updated_at
        `, sessionID, p.X, p.Y, p.Color, p.FID, p.Username, now)
	}

	var (
		total    = len(snap.Pixels)
		upserted int
		errs     int
	)

	results := pool.SendBatch(ctx, batch)
	for i := 0; i < total; i++ {
		tag, err := results.Exec()
		if err != nil {
			p := snap.Pixels[i]
			fmt.Fprintf(os.Stderr, "error upserting pixel (%d,%d): %v\n", p.X, p.Y, err)
			errs++
			continue
		}
		upserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close batch: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Canvas seed complete for session %s (snapshot of %s): %d total, %d upserted, %d errors\n",
		sessionID, snap.SessionID, total, upserted, errs,
	)
}
