package mint_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/pixelplace/go/internal/models"
)

// MintRequest is the payload posted to the minting service.
type MintRequest struct {
	SessionID string         `json:"sessionId"`
	StartTime string         `json:"startTime"`
	EndTime   string         `json:"endTime"`
	MinterFID *int64         `json:"minterFid,omitempty"`
	Pixels    []models.Pixel `json:"pixels"`
}

// MintResponse mirrors the service's reply.
type MintResponse struct {
	TokenID         string `json:"tokenId"`
	ContractAddress string `json:"contractAddress"`
	IPFSHash        string `json:"ipfsHash"`
	ImageURL        string `json:"imageUrl"`
}

// Mint submits a closed session and its pixels for minting.
func (c *Client) Mint(ctx context.Context, session models.Session, pixels []models.Pixel, minterFID *int64) (*models.MintReceipt, error) {
	payload, err := json.Marshal(MintRequest{
		SessionID: session.ID.String(),
		StartTime: session.StartTime.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		EndTime:   session.EndTime.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		MinterFID: minterFID,
		Pixels:    pixels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mint request: %w", err)
	}

	body, err := c.Post(ctx, MintEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to mint session %s: %w", session.ID, err)
	}

	var resp MintResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mint response: %w", err)
	}
	if resp.TokenID == "" {
		return nil, errors.New("mint response missing tokenId")
	}

	return &models.MintReceipt{
		TokenID:         resp.TokenID,
		ContractAddress: resp.ContractAddress,
		IPFSHash:        resp.IPFSHash,
		ImageURL:        resp.ImageURL,
	}, nil
}
