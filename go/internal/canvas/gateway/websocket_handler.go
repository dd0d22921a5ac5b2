package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades GET /canvas/ws?sessionId= requests into hub observers.
type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *Hub, config ConnectionConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("sessionId")
	if raw == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid sessionId format", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.Error().Err(err).Str("session_id", raw).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := newConnection(ws, sessionID, h.config)
	conn.unsubscribe = h.hub.Subscribe(sessionID, conn)

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", sessionID.String()).
		Msg("WebSocket connection established")
}
