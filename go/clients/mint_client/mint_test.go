package mint_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/pixelplace/go/clients"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

func testSession() models.Session {
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	return models.Session{
		ID:        uuid.MustParse("6f1c2f9e-5c4b-4a53-9a8e-1f6f0f4b8b11"),
		StartTime: start,
		EndTime:   start.Add(6 * time.Hour),
		Status:    models.SessionStatusMinting,
	}
}

func TestMint_Success(t *testing.T) {
	var got MintRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != MintEndpoint {
			t.Errorf("request = %s %s, want POST %s", r.Method, r.URL.Path, MintEndpoint)
		}
		if r.Header.Get(APIKeyHeader) != "secret" {
			t.Errorf("api key header = %q", r.Header.Get(APIKeyHeader))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(MintResponse{
			TokenID: "77", ContractAddress: "0xdead", IPFSHash: "QmHash", ImageURL: "https://img/77.png",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret")
	fid := int64(42)
	pixels := []models.Pixel{{X: 1, Y: 2, Color: "#E50000", FID: 42}}

	receipt, err := client.Mint(context.Background(), testSession(), pixels, &fid)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if receipt.TokenID != "77" || receipt.ContractAddress != "0xdead" || receipt.IPFSHash != "QmHash" {
		t.Errorf("receipt = %+v", receipt)
	}
	if got.SessionID != testSession().ID.String() || len(got.Pixels) != 1 || got.MinterFID == nil || *got.MinterFID != 42 {
		t.Errorf("request payload = %+v", got)
	}
}

func TestMint_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "chain congested", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Mint(context.Background(), testSession(), nil, nil)
	var statusErr *clients.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Mint() error = %v, want StatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
}

func TestMint_EmptyTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"contractAddress":"0x0"}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "").Mint(context.Background(), testSession(), nil, nil); err == nil {
		t.Fatal("Mint() should reject a response without tokenId")
	}
}

func TestMint_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewClient(srv.URL, "").Mint(ctx, testSession(), nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Mint() error = %v, want context.Canceled", err)
	}
}
