// Package shellgate implements the local HTTP endpoint shell wrappers call
// before exec'ing their real binary (spec §4.F).
package shellgate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Sentinel-Gate/acp-gate/internal/adapter/inbound/httpmw"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/token"
)

// Gate is the subset of the Consent Gate the shell endpoint depends on.
type Gate interface {
	Decide(ctx context.Context, a action.Action) action.Verdict
}

// Handler serves POST /consent and GET /health.
type Handler struct {
	gate   Gate
	tokens token.Store
	logger *slog.Logger
}

// New builds a shell-gate Handler.
func New(gate Gate, tokens token.Store, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, tokens: tokens, logger: logger}
}

// consentRequest is the body shell wrappers POST to /consent.
type consentRequest struct {
	Name string `json:"name"`
	Args string `json:"args"`
}

// consentResponse is always returned, allowed or not; the shell wrapper
// decides whether to exec based on Approved alone.
type consentResponse struct {
	Approved bool   `json:"approved"`
	Token    string `json:"token,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ServeHTTP routes /consent and /health; anything else is 404, wrong method
// on a known path is 405.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/consent":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleConsent(w, r)
	case "/health":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleHealth(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleConsent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, consentResponse{Approved: false, Reason: "Invalid JSON"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, consentResponse{Approved: false, Reason: `Missing "name" field`})
		return
	}

	a := action.Action{Name: req.Name, Args: req.Args, Kind: action.KindShell}
	logger := httpmw.LoggerFromContext(r.Context(), h.logger)

	v, err := h.decideSafely(r.Context(), a)
	if err != nil {
		logger.Error("shellgate: gate fault", "error", err)
		writeJSON(w, http.StatusInternalServerError, consentResponse{Approved: false, Reason: "Gate error: " + err.Error()})
		return
	}

	if !v.Allowed() {
		writeJSON(w, http.StatusOK, consentResponse{Approved: false, Reason: v.Reason})
		return
	}

	tok, err := h.tokens.Mint(r.Context())
	if err != nil {
		logger.Error("shellgate: token mint failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, consentResponse{Approved: false, Reason: "Gate error: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, consentResponse{Approved: true, Token: tok.Value})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decideSafely wraps gate.Decide with panic recovery: a faulting adapter
// downstream of the gate (channel, sink) must surface as a 500, not take
// the whole endpoint down.
func (h *Handler) decideSafely(ctx context.Context, a action.Action) (v action.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return h.gate.Decide(ctx, a), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
