package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	nodex "github.com/tanpawarit/Chative-Support-Router/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/Chative-Support-Router/agent/state"
)

type fakeStore struct {
	mu        sync.Mutex
	loadState *statex.SessionState
	loadErr   error
	saveErr   error
	saved     []*statex.SessionState
}

func (f *fakeStore) Load(ctx context.Context, sessionID string) (*statex.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.loadState == nil {
		return nil, statex.ErrStateNotFound
	}
	return cloneSessionState(f.loadState), nil
}

func (f *fakeStore) Save(ctx context.Context, st *statex.SessionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, cloneSessionState(st))
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, sessionID string) error {
	return nil
}

func (f *fakeStore) lastSaved(t *testing.T) *statex.SessionState {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		t.Fatal("expected a saved session")
	}
	return f.saved[len(f.saved)-1]
}

type fakeClassifier struct {
	resp  contractx.Classification
	err   error
	calls int
	reqs  []contractx.ClassifyRequest
}

func (f *fakeClassifier) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.Classification, error) {
	f.calls++
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return contractx.Classification{}, f.err
	}
	return f.resp, nil
}

type fakeHandler struct {
	mu        sync.Mutex
	responses []contractx.HandlerResponse
	repeat    bool
	err       error
	reqs      []contractx.HandlerRequest
}

func (f *fakeHandler) Respond(ctx context.Context, req contractx.HandlerRequest) (contractx.HandlerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return contractx.HandlerResponse{}, f.err
	}
	idx := len(f.reqs) - 1
	if f.repeat && idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	if idx < 0 || idx >= len(f.responses) {
		return contractx.HandlerResponse{}, fmt.Errorf("no handler response left at call=%d", len(f.reqs))
	}
	return f.responses[idx], nil
}

type toolCallRecord struct {
	category contractx.Category
	reqs     []contractx.ToolRequest
}

type fakeTools struct {
	results []contractx.ToolResult
	err     error
	calls   []toolCallRecord
}

func (f *fakeTools) Execute(ctx context.Context, category contractx.Category, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	f.calls = append(f.calls, toolCallRecord{
		category: category,
		reqs:     append([]contractx.ToolRequest(nil), reqs...),
	})
	if f.err != nil {
		return nil, f.err
	}
	out := make([]contractx.ToolResult, len(reqs))
	for i, req := range reqs {
		res := contractx.ToolResult{Tool: req.Tool, CallID: req.ID, Result: map[string]any{"ok": true}}
		if i < len(f.results) {
			res = f.results[i]
			res.CallID = req.ID
		}
		out[i] = res
	}
	return out, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	calls []contractx.Escalation
}

func (f *fakeNotifier) NotifyEscalation(ctx context.Context, e contractx.Escalation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, e)
	return f.err
}

type fakeRegistry struct {
	classifier   contractx.Classifier
	sales        contractx.Handler
	techSupport  contractx.Handler
	orderInquiry contractx.Handler
}

func (f *fakeRegistry) Classifier() contractx.Classifier { return f.classifier }
func (f *fakeRegistry) Sales() contractx.Handler         { return f.sales }
func (f *fakeRegistry) TechSupport() contractx.Handler   { return f.techSupport }
func (f *fakeRegistry) OrderInquiry() contractx.Handler  { return f.orderInquiry }

func newTestOrchestrator(
	t *testing.T,
	store statex.Store,
	models contractx.Registry,
	tools contractx.ToolGateway,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	t.Helper()

	opts = append([]Option{WithClock(func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	})}, opts...)
	o, err := New(store, models, tools, cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func cloneSessionState(st *statex.SessionState) *statex.SessionState {
	if st == nil {
		return nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		panic(err)
	}
	var out statex.SessionState
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return &out
}

func pendingSession(category contractx.Category, ids contractx.Identifiers) *statex.SessionState {
	st := statex.NewSessionState("s1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	st.Append(schema.UserMessage("earlier question"), schema.AssistantMessage("earlier answer", nil))
	st.PendingCategory = category
	st.Identifiers = ids
	return st
}

func toolRound(reqs ...contractx.ToolRequest) contractx.HandlerResponse {
	calls := make([]schema.ToolCall, 0, len(reqs))
	for _, r := range reqs {
		args, _ := json.Marshal(r.Args)
		calls = append(calls, schema.ToolCall{ID: r.ID, Type: "function", Function: schema.FunctionCall{Name: r.Tool, Arguments: string(args)}})
	}
	return contractx.HandlerResponse{Message: schema.AssistantMessage("", calls), ToolRequests: reqs}
}

func reply(text string) contractx.HandlerResponse {
	return contractx.HandlerResponse{Message: schema.AssistantMessage(text, nil), Reply: text}
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{}
	o := newTestOrchestrator(t,
		&fakeStore{},
		&fakeRegistry{classifier: classifier, sales: &fakeHandler{}, techSupport: &fakeHandler{}, orderInquiry: &fakeHandler{}},
		&fakeTools{},
		Config{},
	)

	_, err := o.HandleMessage(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	_, err = o.HandleMessage(context.Background(), "s1", "    ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if classifier.calls != 0 {
		t.Fatalf("classifier must not run for invalid input, got %d calls", classifier.calls)
	}
}

func TestHandleMessageFirstTurnClassifiesAndReplies(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	classifier := &fakeClassifier{resp: contractx.Classification{
		Category:    contractx.CategorySales,
		Identifiers: contractx.Identifiers{CustomerID: "CUST001"},
	}}
	sales := &fakeHandler{responses: []contractx.HandlerResponse{reply("The ProBook 5000 fits your budget.")}}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: sales, techSupport: &fakeHandler{}, orderInquiry: &fakeHandler{}},
		&fakeTools{}, Config{},
	)

	out, err := o.HandleMessage(context.Background(), "s1", "  I am CUST001, need a laptop  ")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != "The ProBook 5000 fits your budget." || out.Category != contractx.CategorySales || out.Escalated {
		t.Fatalf("unexpected reply: %+v", out)
	}
	if out.Known.CustomerID != "CUST001" {
		t.Fatalf("expected learned customer id, got %+v", out.Known)
	}
	if classifier.reqs[0].Message != "I am CUST001, need a laptop" {
		t.Fatalf("classifier must see the trimmed message, got %q", classifier.reqs[0].Message)
	}
	if sales.reqs[0].Known.CustomerID != "CUST001" {
		t.Fatalf("handler must see ids learned this turn, got %+v", sales.reqs[0].Known)
	}

	saved := store.lastSaved(t)
	if saved.PendingCategory != contractx.CategorySales {
		t.Fatalf("expected pending category sales, got %q", saved.PendingCategory)
	}
	if len(saved.Messages) != 2 || saved.Messages[0].Role != schema.User || saved.Messages[1].Role != schema.Assistant {
		t.Fatalf("unexpected saved messages: %#v", saved.Messages)
	}
	if !saved.UpdatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected updated_at: %s", saved.UpdatedAt)
	}
}

func TestHandleMessagePendingCategorySkipsClassifier(t *testing.T) {
	t.Parallel()

	store := &fakeStore{loadState: pendingSession(contractx.CategoryTechSupport, contractx.Identifiers{ProductID: "LP-5000"})}
	classifier := &fakeClassifier{}
	tech := &fakeHandler{responses: []contractx.HandlerResponse{reply("Update the BIOS to 1.0.7.")}}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: &fakeHandler{}, techSupport: tech, orderInquiry: &fakeHandler{}},
		&fakeTools{}, Config{},
	)

	out, err := o.HandleMessage(context.Background(), "s1", "still broken")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if classifier.calls != 0 {
		t.Fatalf("pending category must skip classification, got %d calls", classifier.calls)
	}
	if out.Category != contractx.CategoryTechSupport {
		t.Fatalf("unexpected category: %s", out.Category)
	}
	if got := len(tech.reqs[0].Messages); got != 3 {
		t.Fatalf("handler must see history plus the new message, got %d messages", got)
	}
	if len(store.lastSaved(t).Messages) != 4 {
		t.Fatalf("expected 4 saved messages, got %d", len(store.lastSaved(t).Messages))
	}
}

func TestHandleMessageClassifierSeesBoundedWindow(t *testing.T) {
	t.Parallel()

	st := statex.NewSessionState("s1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := range 8 {
		st.Append(schema.UserMessage(fmt.Sprintf("q%d", i)), schema.AssistantMessage(fmt.Sprintf("a%d", i), nil))
	}
	store := &fakeStore{loadState: st}
	classifier := &fakeClassifier{resp: contractx.Classification{Category: contractx.CategoryOrderInquiry}}
	orders := &fakeHandler{responses: []contractx.HandlerResponse{reply("Which order?")}}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: &fakeHandler{}, techSupport: &fakeHandler{}, orderInquiry: orders},
		&fakeTools{}, Config{},
	)

	if _, err := o.HandleMessage(context.Background(), "s1", "where is my order"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	history := classifier.reqs[0].History
	if len(history) != 10 || history[0].Content != "q3" || history[9].Content != "a7" {
		t.Fatalf("expected the last 10 messages, got %d starting at %q", len(history), history[0].Content)
	}
}

func TestHandleMessageToolRoundFeedsResultsBack(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	classifier := &fakeClassifier{resp: contractx.Classification{Category: contractx.CategoryOrderInquiry}}
	orders := &fakeHandler{responses: []contractx.HandlerResponse{
		toolRound(contractx.ToolRequest{ID: "call_1", Tool: "get_order_details", Args: map[string]any{"order_id": "ORD1A2B3C"}}),
		reply("Your order has shipped."),
	}}
	tools := &fakeTools{results: []contractx.ToolResult{{Tool: "get_order_details", Result: map[string]any{"status": "shipped"}}}}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: &fakeHandler{}, techSupport: &fakeHandler{}, orderInquiry: orders},
		tools, Config{},
	)

	out, err := o.HandleMessage(context.Background(), "s1", "status of ORD1A2B3C?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != "Your order has shipped." {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if len(tools.calls) != 1 || tools.calls[0].category != contractx.CategoryOrderInquiry {
		t.Fatalf("unexpected tool calls: %#v", tools.calls)
	}

	second := orders.reqs[1].Messages
	last := second[len(second)-1]
	if last.Role != schema.Tool || last.ToolCallID != "call_1" || !strings.Contains(last.Content, `"shipped"`) {
		t.Fatalf("tool result must be fed back, got %#v", last)
	}
	if orders.reqs[1].Known.OrderID != "ORD1A2B3C" {
		t.Fatalf("order id must be learned from the tool call, got %+v", orders.reqs[1].Known)
	}

	saved := store.lastSaved(t)
	if len(saved.Messages) != 4 {
		t.Fatalf("expected user, tool call, tool result and reply, got %d messages", len(saved.Messages))
	}
	if saved.Identifiers.OrderID != "ORD1A2B3C" {
		t.Fatalf("expected order id to stick, got %+v", saved.Identifiers)
	}
}

func TestHandleMessageToolErrorsAreFedBackAsPayload(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	classifier := &fakeClassifier{resp: contractx.Classification{Category: contractx.CategoryOrderInquiry}}
	orders := &fakeHandler{responses: []contractx.HandlerResponse{
		toolRound(contractx.ToolRequest{ID: "call_1", Tool: "get_order_details", Args: map[string]any{"order_id": "ORDNOPE"}}),
		reply("I could not find that order."),
	}}
	tools := &fakeTools{results: []contractx.ToolResult{{Tool: "get_order_details", Error: "Order not found"}}}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: &fakeHandler{}, techSupport: &fakeHandler{}, orderInquiry: orders},
		tools, Config{},
	)

	if _, err := o.HandleMessage(context.Background(), "s1", "where is ORDNOPE"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	second := orders.reqs[1].Messages
	if got := second[len(second)-1].Content; got != `{"error":"Order not found"}` {
		t.Fatalf("unexpected tool payload: %s", got)
	}
	if store.lastSaved(t).Identifiers.OrderID != "" {
		t.Fatal("ids from failed tool calls must not stick")
	}
}

func TestHandleMessageEscalationFromClassifier(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	notifier := &fakeNotifier{}
	classifier := &fakeClassifier{resp: contractx.Classification{
		Category:    contractx.CategoryEscalation,
		Identifiers: contractx.Identifiers{OrderID: "ORD123456"},
	}}
	sales := &fakeHandler{}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: sales, techSupport: &fakeHandler{}, orderInquiry: &fakeHandler{}},
		&fakeTools{}, Config{}, WithEscalationNotifier(notifier),
	)

	out, err := o.HandleMessage(context.Background(), "s1", "I want a refund for ORD123456")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Reply != nodex.EscalationReply || !out.Escalated || out.Category != contractx.CategoryEscalation {
		t.Fatalf("unexpected reply: %+v", out)
	}
	if len(sales.reqs) != 0 {
		t.Fatal("no handler may run for an escalation")
	}
	if len(notifier.calls) != 1 || notifier.calls[0].Identifiers.OrderID != "ORD123456" || notifier.calls[0].From != contractx.CategoryEscalation {
		t.Fatalf("unexpected notifications: %#v", notifier.calls)
	}
	saved := store.lastSaved(t)
	if saved.PendingCategory != "" {
		t.Fatalf("escalation must clear the pending category, got %q", saved.PendingCategory)
	}
	if saved.Identifiers.OrderID != "ORD123456" {
		t.Fatalf("identifiers must still be committed, got %+v", saved.Identifiers)
	}
}

func TestHandleMessageHandlerEscalationClearsPendingCategory(t *testing.T) {
	t.Parallel()

	store := &fakeStore{loadState: pendingSession(contractx.CategorySales, contractx.Identifiers{})}
	notifier := &fakeNotifier{err: errors.New("qstash down")}
	sales := &fakeHandler{responses: []contractx.HandlerResponse{{Escalate: true, EscalationReason: "new customer"}}}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: &fakeClassifier{}, sales: sales, techSupport: &fakeHandler{}, orderInquiry: &fakeHandler{}},
		&fakeTools{}, Config{}, WithEscalationNotifier(notifier),
	)

	out, err := o.HandleMessage(context.Background(), "s1", "I don't have an account")
	if err != nil {
		t.Fatalf("notification failures must not fail the turn: %v", err)
	}
	if !out.Escalated || out.Reply != nodex.EscalationReply {
		t.Fatalf("unexpected reply: %+v", out)
	}
	if notifier.calls[0].Reason != "new customer" || notifier.calls[0].From != contractx.CategorySales {
		t.Fatalf("unexpected notification: %+v", notifier.calls[0])
	}
	saved := store.lastSaved(t)
	if saved.PendingCategory != "" {
		t.Fatalf("expected pending category to be cleared, got %q", saved.PendingCategory)
	}
	if last := saved.Messages[len(saved.Messages)-1]; last.Content != nodex.EscalationReply {
		t.Fatalf("expected escalation reply to be stored, got %q", last.Content)
	}
}

func TestHandleMessageToolLoopExceeded(t *testing.T) {
	t.Parallel()

	store := &fakeStore{loadState: pendingSession(contractx.CategorySales, contractx.Identifiers{CustomerID: "CUST002"})}
	sales := &fakeHandler{
		repeat: true,
		responses: []contractx.HandlerResponse{
			toolRound(contractx.ToolRequest{ID: "call_x", Tool: "search_products", Args: map[string]any{"keyword": "mouse"}}),
		},
	}
	tools := &fakeTools{}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: &fakeClassifier{}, sales: sales, techSupport: &fakeHandler{}, orderInquiry: &fakeHandler{}},
		tools, Config{MaxToolRounds: 2},
	)

	_, err := o.HandleMessage(context.Background(), "s1", "any mouse?")
	if !errors.Is(err, contractx.ErrToolLoopExceeded) {
		t.Fatalf("expected ErrToolLoopExceeded, got %v", err)
	}
	if len(tools.calls) != 2 {
		t.Fatalf("expected 2 tool rounds, got %d", len(tools.calls))
	}

	saved := store.lastSaved(t)
	if len(saved.Messages) != 2+1+4 {
		t.Fatalf("expected history, user message and two complete tool exchanges, got %d", len(saved.Messages))
	}
	if saved.PendingCategory != contractx.CategorySales || saved.Identifiers.CustomerID != "CUST002" {
		t.Fatalf("failed turn must not change routing state: %+v", saved)
	}
}

func TestHandleMessageToolOutsidePartitionFailsTurn(t *testing.T) {
	t.Parallel()

	store := &fakeStore{loadState: pendingSession(contractx.CategoryTechSupport, contractx.Identifiers{})}
	tech := &fakeHandler{responses: []contractx.HandlerResponse{
		toolRound(contractx.ToolRequest{ID: "call_1", Tool: "place_order", Args: map[string]any{}}),
	}}
	tools := &fakeTools{}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: &fakeClassifier{}, sales: &fakeHandler{}, techSupport: tech, orderInquiry: &fakeHandler{}},
		tools, Config{},
	)

	_, err := o.HandleMessage(context.Background(), "s1", "order one")
	if !errors.Is(err, contractx.ErrToolNotAllowed) {
		t.Fatalf("expected ErrToolNotAllowed, got %v", err)
	}
	if len(tools.calls) != 0 {
		t.Fatal("tools outside the partition must never execute")
	}
}

func TestHandleMessageClassifierFailureKeepsUserMessage(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	classifier := &fakeClassifier{err: fmt.Errorf("%w: upstream 503", contractx.ErrModelInvoke)}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: &fakeHandler{}, techSupport: &fakeHandler{}, orderInquiry: &fakeHandler{}},
		&fakeTools{}, Config{},
	)

	_, err := o.HandleMessage(context.Background(), "s1", "hello")
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	saved := store.lastSaved(t)
	if len(saved.Messages) != 1 || saved.Messages[0].Content != "hello" {
		t.Fatalf("expected the user message to be kept, got %#v", saved.Messages)
	}
	if saved.PendingCategory != "" {
		t.Fatalf("no category may be guessed, got %q", saved.PendingCategory)
	}
}

func TestHandleMessageSaveErrorPropagates(t *testing.T) {
	t.Parallel()

	saveErr := errors.New("redis unavailable")
	store := &fakeStore{saveErr: saveErr}
	classifier := &fakeClassifier{resp: contractx.Classification{Category: contractx.CategorySales}}
	sales := &fakeHandler{responses: []contractx.HandlerResponse{reply("hi")}}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: sales, techSupport: &fakeHandler{}, orderInquiry: &fakeHandler{}},
		&fakeTools{}, Config{},
	)

	_, err := o.HandleMessage(context.Background(), "s1", "hello")
	if !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
}

func TestHandleMessageSerializesSameSession(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	var inFlight, peak atomic.Int32
	sales := &blockingHandler{inFlight: &inFlight, peak: &peak}
	classifier := &fakeClassifier{resp: contractx.Classification{Category: contractx.CategorySales}}
	o := newTestOrchestrator(t, store,
		&fakeRegistry{classifier: classifier, sales: sales, techSupport: &fakeHandler{}, orderInquiry: &fakeHandler{}},
		&fakeTools{}, Config{},
	)

	const turns = 8
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.HandleMessage(context.Background(), "shared", fmt.Sprintf("message %d", i)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if peak.Load() != 1 {
		t.Fatalf("turns of one session overlapped, peak=%d", peak.Load())
	}
	st, err := store.Load(context.Background(), "shared")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(st.Messages) != 2*turns {
		t.Fatalf("expected %d messages, got %d", 2*turns, len(st.Messages))
	}
	if o.locks.size() != 0 {
		t.Fatalf("session locks must be released, %d left", o.locks.size())
	}
}

type blockingHandler struct {
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (b *blockingHandler) Respond(ctx context.Context, req contractx.HandlerRequest) (contractx.HandlerResponse, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return reply("ok"), nil
}
