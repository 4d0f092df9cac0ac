package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

// fakeUpstash answers Upstash REST commands from an in-memory map.
type fakeUpstash struct {
	mu       sync.Mutex
	data     map[string]string
	commands [][]any
}

func newFakeUpstash(t *testing.T) (*fakeUpstash, *httptest.Server) {
	t.Helper()

	f := &fakeUpstash{data: map[string]string{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"unauthorized"}`)
			return
		}

		var cmd []any
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.commands = append(f.commands, cmd)

		key, _ := cmd[1].(string)
		switch cmd[0] {
		case "SET":
			f.data[key], _ = cmd[2].(string)
			fmt.Fprint(w, `{"result":"OK"}`)
		case "GET":
			v, ok := f.data[key]
			if !ok {
				fmt.Fprint(w, `{"result":null}`)
				return
			}
			encoded, _ := json.Marshal(v)
			fmt.Fprintf(w, `{"result":%s}`, encoded)
		case "DEL":
			delete(f.data, key)
			fmt.Fprint(w, `{"result":1}`)
		default:
			fmt.Fprintf(w, `{"error":"unknown command %v"}`, cmd[0])
		}
	}))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeUpstash) lastCommand() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return nil
	}
	return f.commands[len(f.commands)-1]
}

func newTestUpstashStore(t *testing.T, server *httptest.Server, opts ...StoreOption) *UpstashRedisStore {
	t.Helper()

	opts = append([]StoreOption{WithHTTPClient(server.Client())}, opts...)
	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, opts...)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func TestUpstashRedisStoreKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: defaultKeyPrefix}
	got, err := store.key("abc")
	if err != nil {
		t.Fatalf("key() error = %v", err)
	}
	if got != "support:session:abc" {
		t.Fatalf("key() = %q, want %q", got, "support:session:abc")
	}

	if _, err := store.key("   "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("key() error = %v, want ErrInvalidSession", err)
	}
}

func TestNewUpstashRedisStoreRequiresURLAndToken(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashRedisStore(UpstashRedisConfig{Token: "token"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewUpstashRedisStore(UpstashRedisConfig{URL: "http://localhost"}); err == nil {
		t.Fatal("expected error for missing token")
	}
	if (UpstashRedisConfig{URL: "http://localhost"}).Enabled() {
		t.Fatal("config without token must not be enabled")
	}
}

func TestUpstashRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server)
	ctx := context.Background()

	st := NewSessionState("session-1", time.Now())
	st.Append(
		schema.UserMessage("where is my order ORD1A2B3C?"),
		&schema.Message{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{{
				ID:       "call-1",
				Type:     "function",
				Function: schema.FunctionCall{Name: "get_order_details", Arguments: `{"order_id":"ORD1A2B3C"}`},
			}},
		},
		schema.ToolMessage(`{"order_id":"ORD1A2B3C","status":"shipped"}`, "call-1"),
		schema.AssistantMessage("Your order has shipped.", nil),
	)
	st.PendingCategory = contractx.CategoryOrderInquiry
	st.Remember(contractx.Identifiers{OrderID: "ORD1A2B3C"})

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cmd := fake.lastCommand()
	if len(cmd) != 5 || cmd[0] != "SET" || cmd[1] != "support:session:session-1" || cmd[3] != "EX" {
		t.Fatalf("unexpected SET command: %#v", cmd)
	}
	if ttl, _ := cmd[4].(float64); ttl != float64(defaultSessionTTL/time.Second) {
		t.Fatalf("unexpected ttl: %v", cmd[4])
	}

	loaded, err := store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.PendingCategory != contractx.CategoryOrderInquiry {
		t.Fatalf("PendingCategory = %q", loaded.PendingCategory)
	}
	if loaded.Identifiers.OrderID != "ORD1A2B3C" {
		t.Fatalf("Identifiers = %#v", loaded.Identifiers)
	}
	if len(loaded.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(loaded.Messages))
	}
	if got := loaded.Messages[1].ToolCalls[0].Function.Name; got != "get_order_details" {
		t.Fatalf("tool call name = %q", got)
	}
	if got := loaded.Messages[2].ToolCallID; got != "call-1" {
		t.Fatalf("tool call id = %q", got)
	}

	if err := store.Delete(ctx, "session-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "session-1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() after delete error = %v, want ErrStateNotFound", err)
	}
}

func TestUpstashRedisStoreSaveWithoutTTL(t *testing.T) {
	t.Parallel()

	fake, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server, WithTTL(0), WithKeyPrefix("test:"))

	if err := store.Save(context.Background(), NewSessionState("s", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	cmd := fake.lastCommand()
	if len(cmd) != 3 || cmd[1] != "test:s" {
		t.Fatalf("unexpected SET command: %#v", cmd)
	}
}

func TestUpstashRedisStoreSaveRejectsInvalidState(t *testing.T) {
	t.Parallel()

	_, server := newFakeUpstash(t)
	store := newTestUpstashStore(t, server)

	st := NewSessionState("s", time.Now())
	st.PendingCategory = "billing"
	if err := store.Save(context.Background(), st); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("Save() error = %v, want ErrInvalidCategory", err)
	}
	if err := store.Save(context.Background(), nil); !errors.Is(err, ErrNilSessionState) {
		t.Fatalf("Save(nil) error = %v, want ErrNilSessionState", err)
	}
}

func TestUpstashRedisStoreSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	_, server := newFakeUpstash(t)
	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "wrong"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	if _, err := store.Load(context.Background(), "s"); err == nil {
		t.Fatal("expected error for unauthorized request")
	}
}

func TestUpstashRedisStoreRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":"try again"}`)
			return
		}
		fmt.Fprint(w, `{"result":null}`)
	}))
	t.Cleanup(server.Close)

	store := newTestUpstashStore(t, server, WithRetries(2))
	if _, err := store.Load(context.Background(), "s"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound after retry", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected 2 requests, got %d", calls)
	}
}

func TestUpstashRedisStoreDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"unauthorized"}`)
	}))
	t.Cleanup(server.Close)

	store := newTestUpstashStore(t, server, WithRetries(3))
	err := store.Delete(context.Background(), "s")
	var restErr *RESTError
	if !errors.As(err, &restErr) || restErr.Status != http.StatusUnauthorized || restErr.Message != "unauthorized" {
		t.Fatalf("Delete() error = %v, want RESTError 401", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("client errors must not be retried, got %d requests", calls)
	}
}

func TestExpirySecondsRoundsUp(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]int64{
		time.Millisecond:        1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
		time.Hour:               3600,
	}
	for ttl, want := range cases {
		if got := expirySeconds(ttl); got != want {
			t.Fatalf("expirySeconds(%v) = %d, want %d", ttl, got, want)
		}
	}
}
