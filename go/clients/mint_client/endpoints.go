package mint_client

const (
	// API Endpoints
	MintEndpoint = "/mint"

	// Headers
	APIKeyHeader      = "X-API-Key"
	ContentTypeHeader = "Content-Type"
	ContentTypeJSON   = "application/json"
)
