package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
)

// Error codes that let clients tell rejections apart.
const (
	CodeNoActiveSession    = "no_active_session"
	CodeInvalidParameters  = "invalid_parameters"
	CodeInvalidCoordinates = "invalid_coordinates"
	CodeCooldownActive     = "cooldown_active"
	CodeInvalidTransition  = "invalid_transition"
	CodeAlreadyMinted      = "already_minted"
	CodeNotFound           = "not_found"
)

type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Cooldown *int   `json:"cooldown,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeValidation(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: message, Code: code})
}

// writeError maps err onto a status code. Dependency failures are logged and
// reported with fallback so storage details do not leak to clients.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var cooldown *canvas.CooldownError
	if errors.As(err, &cooldown) {
		secs := cooldown.RemainingSeconds()
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:    err.Error(),
			Code:     CodeCooldownActive,
			Cooldown: &secs,
		})
		return
	}

	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	switch canvas.Kind(err) {
	case canvas.KindValidation:
		status = http.StatusBadRequest
		body.Code = CodeInvalidParameters
		if errors.Is(err, canvas.ErrInvalidCoordinates) {
			body.Code = CodeInvalidCoordinates
		}
	case canvas.KindState:
		status = http.StatusBadRequest
		switch {
		case errors.Is(err, canvas.ErrNoActiveSession):
			body.Code = CodeNoActiveSession
		case errors.Is(err, canvas.ErrAlreadyMinted):
			body.Code = CodeAlreadyMinted
		default:
			body.Code = CodeInvalidTransition
		}
	case canvas.KindNotFound:
		status = http.StatusNotFound
		body.Code = CodeNotFound
	default:
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg(fallback)
		body.Error = fallback
	}

	writeJSON(w, status, body)
}
