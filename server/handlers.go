package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/fault"
	"github.com/richinex/notewright/storage"
)

// TransportName is recorded in the turn journal for HTTP turns.
const TransportName = "http"

type handlers struct {
	runner       TurnRunner
	journal      TurnRecorder
	logger       *slog.Logger
	maxBodyBytes int64
	version      string
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// handleHealth handles GET /health.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: h.version})
}

type chatRequest struct {
	Message *string `json:"message"`
}

type chatResponse struct {
	agent.Outcome
	RequestID string `json:"request_id"`
}

// handleChat handles POST /chat. The body must be exactly {"message": string}.
func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req chatRequest
	if err := decodeJSON(r, &req, "message"); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Message == nil {
		writeError(w, r, fault.Validationf("missing field `message`"))
		return
	}

	out, err := h.runner.RunTurn(r.Context(), agent.TurnRequest{Input: *req.Message})
	h.record(r, out, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Outcome:   out,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func (h *handlers) record(r *http.Request, out agent.Outcome, err error) {
	if h.journal == nil || out.TurnID == "" {
		return
	}
	// The request context may already be cancelled; the record should still land.
	ctx := context.WithoutCancel(r.Context())
	if jerr := h.journal.Record(ctx, storage.NewTurnRecord(TransportName, out, err)); jerr != nil {
		h.logger.Warn("failed to journal turn",
			"turn_id", out.TurnID,
			"request_id", RequestIDFromContext(r.Context()),
			"error", jerr,
		)
	}
}
