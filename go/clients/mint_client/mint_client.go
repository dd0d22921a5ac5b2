package mint_client

import (
	"time"

	"github.com/mcdev12/pixelplace/go/clients"
)

// Uploading the rendered canvas and submitting the token can take well over
// the base client's default.
const mintTimeout = 2 * time.Minute

// Client talks to an external minting service that turns a finished canvas
// into a token and returns where it was stored.
type Client struct {
	*clients.BaseClient
}

func NewClient(baseURL, apiKey string) *Client {
	client := &Client{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetTimeout(mintTimeout)
	client.SetHeader(ContentTypeHeader, ContentTypeJSON)
	if apiKey != "" {
		client.SetHeader(APIKeyHeader, apiKey)
	}

	return client
}
