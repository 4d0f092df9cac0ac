package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Support-Router/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	"github.com/tanpawarit/Chative-Support-Router/agent/escalation"
	statex "github.com/tanpawarit/Chative-Support-Router/agent/state"
)

const signatureHeader = "Upstash-Signature"

type messageRequest struct {
	Message string `json:"message"`
}

type sessionResponse struct {
	SessionID       string                `json:"session_id"`
	PendingCategory contractx.Category    `json:"pending_category,omitempty"`
	Identifiers     contractx.Identifiers `json:"identifiers"`
	Messages        []transcriptEntry     `json:"messages"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// transcriptEntry is one user or assistant line; tool traffic is internal.
type transcriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newSessionID() string {
	return uuid.NewString()
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": s.newID()})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.conv.HandleMessage(r.Context(), chi.URLParam(r, "sessionID"), req.Message)
	if err != nil {
		writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.conv.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.ResetSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeTurnError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEscalationCallback receives escalation tickets delivered by QStash
// when the notifier destination points back at this service.
func (s *Server) handleEscalationCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large")
		return
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		writeError(w, http.StatusUnauthorized, "missing signature")
		return
	}
	if err := s.verifier.Verify(signature, body, s.callbackURL(r)); err != nil {
		log.Warn().Err(err).Msg("rejected escalation callback")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var ticket escalation.Ticket
	if err := json.Unmarshal(body, &ticket); err != nil || strings.TrimSpace(ticket.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "invalid ticket")
		return
	}

	log.Info().
		Str("session_id", ticket.SessionID).
		Str("category", string(ticket.From)).
		Str("reason", ticket.Reason).
		Str("customer_id", ticket.Identifiers.CustomerID).
		Str("order_id", ticket.Identifiers.OrderID).
		Msg("escalation ticket received")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) callbackURL(r *http.Request) string {
	if base := strings.TrimRight(s.cfg.PublicURL, "/"); base != "" {
		return base + r.URL.Path
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func (s *Server) maxBody() int64 {
	if s.cfg.MaxBodyBytes > 0 {
		return s.cfg.MaxBodyBytes
	}
	return 1 << 16
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func toSessionResponse(st *statex.SessionState) sessionResponse {
	out := sessionResponse{
		SessionID:       st.SessionID,
		PendingCategory: st.PendingCategory,
		Identifiers:     st.Identifiers,
		Messages:        make([]transcriptEntry, 0, len(st.Messages)),
		CreatedAt:       st.CreatedAt,
		UpdatedAt:       st.UpdatedAt,
	}
	for _, m := range st.Messages {
		if m == nil || m.Content == "" || len(m.ToolCalls) > 0 {
			continue
		}
		if m.Role == schema.User || m.Role == schema.Assistant {
			out.Messages = append(out.Messages, transcriptEntry{Role: string(m.Role), Content: m.Content})
		}
	}
	return out
}

func writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidSession),
		errors.Is(err, orchestrator.ErrInvalidMessage),
		errors.Is(err, statex.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, statex.ErrStateNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, contractx.ErrModelInvoke):
		writeError(w, http.StatusBadGateway, "language model unavailable")
	case errors.Is(err, contractx.ErrToolLoopExceeded):
		writeError(w, http.StatusUnprocessableEntity, "the assistant could not complete the request")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}
