package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tanpawarit/Chative-Support-Router/pkg/telemetry"
)

const (
	defaultKeyPrefix   = "support:session:"
	defaultSessionTTL  = 24 * time.Hour
	defaultRESTRetries = 2
	restRetryBase      = 100 * time.Millisecond
	maxReplyBytes      = 2 << 20
)

var tracer = telemetry.Tracer("github.com/tanpawarit/Chative-Support-Router/agent/state")

// RESTError is a non-2xx answer or an error reply from the Upstash REST API.
type RESTError struct {
	Status  int
	Message string
}

func (e *RESTError) Error() string {
	if e.Status == 0 {
		return "upstash redis: " + e.Message
	}
	return fmt.Sprintf("upstash redis: status %d: %s", e.Status, e.Message)
}

// transient reports whether repeating the command may succeed.
func (e *RESTError) transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL"`
	Token   string        `envconfig:"TOKEN"`
	TTL     time.Duration `envconfig:"TTL" default:"24h"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
	Retries uint64        `envconfig:"RETRIES" default:"2"`
}

func (c UpstashRedisConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Token) != ""
}

type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.keyPrefix = p
		}
	}
}

// WithTTL sets the session expiry. Zero keeps sessions forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithRetries bounds how often a transient failure is retried.
func WithRetries(n uint64) StoreOption {
	return func(s *UpstashRedisStore) {
		s.retries = n
	}
}

// UpstashRedisStore keeps each session as one JSON string value in Upstash
// Redis, written with SET and an optional expiry.
type UpstashRedisStore struct {
	endpoint   string
	token      string
	keyPrefix  string
	ttl        time.Duration
	retries    uint64
	httpClient *http.Client
}

var _ Store = (*UpstashRedisStore)(nil)

// restReply is the envelope of every Upstash REST answer.
type restReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if endpoint == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid upstash redis url: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &UpstashRedisStore{
		endpoint:   endpoint,
		token:      token,
		keyPrefix:  defaultKeyPrefix,
		ttl:        defaultSessionTTL,
		retries:    defaultRESTRetries,
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.TTL > 0 {
		s.ttl = cfg.TTL
	}
	if cfg.Retries > 0 {
		s.retries = cfg.Retries
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return s, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, sessionID string) (_ *SessionState, err error) {
	key, err := s.key(sessionID)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "state.Load", sessionID)
	defer func() { endSpan(span, err) }()

	result, err := s.command(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrStateNotFound
	}

	// GET answers with the stored value as a JSON string.
	var stored string
	if err := json.Unmarshal(result, &stored); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	var st SessionState
	if err := json.Unmarshal([]byte(stored), &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	st.normalize()
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session state loaded from store: %w", err)
	}
	return &st, nil
}

func (s *UpstashRedisStore) Save(ctx context.Context, st *SessionState) (err error) {
	if st == nil {
		return ErrNilSessionState
	}
	st.normalize()
	if err := st.Validate(); err != nil {
		return err
	}
	key, err := s.key(st.SessionID)
	if err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "state.Save", st.SessionID)
	defer func() { endSpan(span, err) }()

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	args := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		args = append(args, "EX", expirySeconds(s.ttl))
	}
	_, err = s.command(ctx, args...)
	return err
}

func (s *UpstashRedisStore) Delete(ctx context.Context, sessionID string) (err error) {
	key, err := s.key(sessionID)
	if err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "state.Delete", sessionID)
	defer func() { endSpan(span, err) }()

	_, err = s.command(ctx, "DEL", key)
	return err
}

func (s *UpstashRedisStore) key(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrInvalidSession
	}
	return s.keyPrefix + sessionID, nil
}

// command sends one Redis command, retrying network failures, 429 and 5xx
// answers with exponential backoff. SET and DEL are idempotent, so a
// repeated command is harmless.
func (s *UpstashRedisStore) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	var result json.RawMessage
	attempt := 0
	backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(restRetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		result, err = s.roundTrip(ctx, body)
		var restErr *RESTError
		if err == nil || (errors.As(err, &restErr) && !restErr.transient()) || ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Str("command", fmt.Sprint(args[0])).Int("attempt", attempt).Msg("upstash redis command failed")
		return retry.RetryableError(err)
	})
	return result, err
}

func (s *UpstashRedisStore) roundTrip(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	var reply restReply
	decodeErr := json.Unmarshal(raw, &reply)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := reply.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &RESTError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode redis response: %w", decodeErr)
	}
	if reply.Error != "" {
		return nil, &RESTError{Message: reply.Error}
	}
	return bytes.TrimSpace(reply.Result), nil
}

func (s *UpstashRedisStore) startSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("db.system", "redis"),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// expirySeconds rounds ttl up to whole seconds, at least one.
func expirySeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	return max(secs, 1)
}
