package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tanpawarit/Chative-Support-Router/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Router/agent/state"
	"github.com/tanpawarit/Chative-Support-Router/pkg/qstash"
)

type fakeConversations struct {
	mu       sync.Mutex
	turns    []string
	reply    contractx.TurnReply
	turnErr  error
	sessions map[string]*statex.SessionState
	deleted  []string
}

func (f *fakeConversations) HandleMessage(_ context.Context, sessionID string, text string) (contractx.TurnReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(sessionID) == "" {
		return contractx.TurnReply{}, orchestrator.ErrInvalidSession
	}
	f.turns = append(f.turns, sessionID+":"+text)
	if f.turnErr != nil {
		return contractx.TurnReply{}, f.turnErr
	}
	out := f.reply
	out.SessionID = sessionID
	return out, nil
}

func (f *fakeConversations) Session(_ context.Context, sessionID string) (*statex.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.sessions[sessionID]
	if !ok {
		return nil, statex.ErrStateNotFound
	}
	return st, nil
}

func (f *fakeConversations) ResetSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func newTestServer(t *testing.T, conv Conversations, opts ...Option) *Server {
	t.Helper()
	srv, err := New(Config{MaxBodyBytes: 1 << 12}, conv, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeConversations{})
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateSession(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeConversations{}, WithSessionIDGenerator(func() string { return "s-fixed" }))
	rec := do(t, srv, http.MethodPost, "/v1/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["session_id"] != "s-fixed" {
		t.Fatalf("unexpected session id: %v", body)
	}
}

func TestPostMessage(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{reply: contractx.TurnReply{
		Reply:    "The LP-5000 costs 1299.99.",
		Category: contractx.CategorySales,
		Known:    contractx.Identifiers{ProductID: "LP-5000"},
	}}
	srv := newTestServer(t, conv)

	rec := do(t, srv, http.MethodPost, "/v1/sessions/s1/messages", `{"message":"price of LP-5000?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reply contractx.TurnReply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.SessionID != "s1" || reply.Category != contractx.CategorySales || reply.Known.ProductID != "LP-5000" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(conv.turns) != 1 || conv.turns[0] != "s1:price of LP-5000?" {
		t.Fatalf("unexpected turns: %v", conv.turns)
	}
}

func TestPostMessageRejectsBadBodies(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	srv := newTestServer(t, conv)

	for _, body := range []string{``, `{"message":"  "}`, `{"text":"hi"}`, `not json`} {
		rec := do(t, srv, http.MethodPost, "/v1/sessions/s1/messages", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if len(conv.turns) != 0 {
		t.Fatalf("no turn should run, got %v", conv.turns)
	}
}

func TestPostMessageMapsTurnErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{err: contractx.ErrModelInvoke, want: http.StatusBadGateway},
		{err: contractx.ErrToolLoopExceeded, want: http.StatusUnprocessableEntity},
		{err: orchestrator.ErrInvalidMessage, want: http.StatusBadRequest},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
		{err: fmt.Errorf("%w: boom: tool result count mismatch", contractx.ErrValidation), want: http.StatusInternalServerError},
		{err: fmt.Errorf("%w: boom: handler for sales is not configured", contractx.ErrValidation), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		srv := newTestServer(t, &fakeConversations{turnErr: tc.err})
		rec := do(t, srv, http.MethodPost, "/v1/sessions/s1/messages", `{"message":"hello"}`)
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "boom") {
			t.Fatalf("internal error text leaked: %s", rec.Body.String())
		}
	}
}

func TestGetSessionHidesToolTraffic(t *testing.T) {
	t.Parallel()

	st := statex.NewSessionState("s1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	st.PendingCategory = contractx.CategoryOrderInquiry
	st.Identifiers = contractx.Identifiers{OrderID: "ORD1A2B3C"}
	st.Messages = []*schema.Message{
		schema.UserMessage("where is ORD1A2B3C?"),
		schema.AssistantMessage("", []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: "get_order_details", Arguments: `{"order_id":"ORD1A2B3C"}`}}}),
		schema.ToolMessage(`{"status":"shipped"}`, "c1"),
		schema.AssistantMessage("It has shipped.", nil),
	}
	srv := newTestServer(t, &fakeConversations{sessions: map[string]*statex.SessionState{"s1": st}})

	rec := do(t, srv, http.MethodGet, "/v1/sessions/s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.PendingCategory != contractx.CategoryOrderInquiry || body.Identifiers.OrderID != "ORD1A2B3C" {
		t.Fatalf("unexpected session: %+v", body)
	}
	if len(body.Messages) != 2 || body.Messages[1].Content != "It has shipped." {
		t.Fatalf("expected user and assistant lines only, got %+v", body.Messages)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeConversations{})
	rec := do(t, srv, http.MethodGet, "/v1/sessions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	srv := newTestServer(t, conv)
	rec := do(t, srv, http.MethodDelete, "/v1/sessions/s1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(conv.deleted) != 1 || conv.deleted[0] != "s1" {
		t.Fatalf("unexpected deletes: %v", conv.deleted)
	}
}

func signCallback(t *testing.T, key, subject string, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":  "Upstash",
		"sub":  subject,
		"exp":  time.Now().Add(time.Minute).Unix(),
		"nbf":  time.Now().Add(-time.Minute).Unix(),
		"body": base64.URLEncoding.EncodeToString(sum[:]),
	})
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestEscalationCallback(t *testing.T) {
	t.Parallel()

	client, err := qstash.NewClient(qstash.Config{URL: "https://qstash.example", CurrentSigningKey: "sig-current"})
	if err != nil {
		t.Fatalf("qstash client: %v", err)
	}
	srv, err := New(Config{PublicURL: "https://support.example"}, &fakeConversations{}, WithCallbackVerifier(client))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	body := []byte(`{"session_id":"s1","reason":"refund request","from":"sales","identifiers":{}}`)
	send := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/escalations/callback", strings.NewReader(string(body)))
		if signature != "" {
			req.Header.Set(signatureHeader, signature)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(signCallback(t, "sig-current", "https://support.example/v1/escalations/callback", body)); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if code := send(""); code != http.StatusUnauthorized {
		t.Fatalf("missing signature: expected 401, got %d", code)
	}
	if code := send(signCallback(t, "other-key", "https://support.example/v1/escalations/callback", body)); code != http.StatusUnauthorized {
		t.Fatalf("wrong key: expected 401, got %d", code)
	}
}

func TestEscalationCallbackDisabledWithoutVerifier(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeConversations{})
	rec := do(t, srv, http.MethodPost, "/v1/escalations/callback", `{}`)
	if rec.Code == http.StatusAccepted {
		t.Fatal("callback must not be served without a verifier")
	}
}
