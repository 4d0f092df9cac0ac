// Package orchestrator is the conversation router. Each turn classifies
// the message (or keeps the session's pending handler), runs the handler
// and its tool rounds, and persists the session.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tanpawarit/Chative-Support-Router/agent/agents/specialist"
	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	nodex "github.com/tanpawarit/Chative-Support-Router/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/Chative-Support-Router/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

const (
	defaultMaxToolRounds = 5
	defaultHistoryWindow = 10
)

type Config struct {
	MaxToolRounds  int           `envconfig:"MAX_TOOL_ROUNDS" default:"5"`
	HistoryWindow  int           `envconfig:"HISTORY_WINDOW" default:"10"`
	ModelRetries   uint64        `envconfig:"MODEL_RETRIES" default:"2"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
}

// RetryPolicy is the model retry policy the registry should be built with.
func (c Config) RetryPolicy() specialist.RetryPolicy {
	return specialist.RetryPolicy{MaxRetries: c.ModelRetries, BaseDelay: c.RetryBaseDelay}
}

func (c Config) withDefaults() Config {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = defaultMaxToolRounds
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	return c
}

type Orchestrator struct {
	store    statex.Store
	models   contractx.Registry
	tools    contractx.ToolGateway
	notifier contractx.EscalationNotifier
	cfg      Config

	graphRunner compose.Runnable[nodex.GraphInput, contractx.TurnReply]
	locks       *sessionLocks

	now func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithEscalationNotifier sets where escalations are reported. Without one
// the router still replies with the hand-off text.
func WithEscalationNotifier(n contractx.EscalationNotifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

func New(
	store statex.Store,
	models contractx.Registry,
	tools contractx.ToolGateway,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	o := &Orchestrator{
		store:  store,
		models: models,
		tools:  tools,
		cfg:    cfg.withDefaults(),
		locks:  newSessionLocks(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one turn. Turns of the same session never overlap.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID string, text string) (contractx.TurnReply, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return contractx.TurnReply{}, ErrInvalidSession
	}

	unlock := o.locks.lock(sessionID)
	defer unlock()

	ctx, span := tracer.Start(ctx, "orchestrator.HandleMessage", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	started := time.Now()
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Text:      text,
	})
	recordTurn(ctx, out, err, time.Since(started).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("session_id", sessionID).Msg("turn failed")
		return contractx.TurnReply{}, err
	}

	span.SetAttributes(
		attribute.String("support.category", string(out.Category)),
		attribute.Bool("support.escalated", out.Escalated),
	)
	log.Info().
		Str("session_id", sessionID).
		Str("category", string(out.Category)).
		Bool("escalated", out.Escalated).
		Msg("turn completed")
	return out, nil
}

// Session returns the stored state of a session.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*statex.SessionState, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	return o.store.Load(ctx, sessionID)
}

// ResetSession forgets a session entirely.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidSession
	}
	unlock := o.locks.lock(sessionID)
	defer unlock()
	return o.store.Delete(ctx, sessionID)
}

func NewSessionID() string {
	return uuid.NewString()
}
