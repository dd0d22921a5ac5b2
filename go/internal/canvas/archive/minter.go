package archive

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/pixelplace/go/internal/models"
)

// Minter turns a closed session and its pixels into an external record.
type Minter interface {
	Mint(ctx context.Context, session models.Session, pixels []models.Pixel, minterFID *int64) (*models.MintReceipt, error)
}

var (
	stubContractAddress = "0x" + strings.Repeat("0", 40)
	stubIPFSHash        = "Qm" + strings.Repeat("0", 44)
)

// StubMinter produces placeholder receipts without contacting any chain.
type StubMinter struct {
	clock        clockwork.Clock
	snapshotPath string
}

// NewStubMinter returns a minter whose image URLs point at snapshotPath.
func NewStubMinter(clock clockwork.Clock, snapshotPath string) *StubMinter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if snapshotPath == "" {
		snapshotPath = "/canvas/snapshot"
	}
	return &StubMinter{
		clock:        clock,
		snapshotPath: snapshotPath,
	}
}

func (m *StubMinter) Mint(_ context.Context, session models.Session, _ []models.Pixel, _ *int64) (*models.MintReceipt, error) {
	q := url.Values{}
	q.Set("sessionId", session.ID.String())
	return &models.MintReceipt{
		TokenID:         strconv.FormatInt(m.clock.Now().UnixMilli(), 10),
		ContractAddress: stubContractAddress,
		IPFSHash:        stubIPFSHash,
		ImageURL:        fmt.Sprintf("%s?%s", m.snapshotPath, q.Encode()),
	}, nil
}
