package qstash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	maxResponseSizeBytes = 1 << 20
	signatureIssuer      = "Upstash"
)

var (
	ErrInvalidSignature = errors.New("invalid qstash signature")
	ErrNoSigningKeys    = errors.New("qstash signing keys are not configured")
)

type Config struct {
	URL               string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string        `split_words:"true"`
	CurrentSigningKey string        `split_words:"true"`
	NextSigningKey    string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
}

// Enabled reports whether publishing is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != ""
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	httpClient        *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             strings.TrimSpace(cfg.Token),
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type PublishOptions struct {
	// DeduplicationID makes QStash drop repeated publishes with the same id.
	DeduplicationID string
	Retries         *int
	Delay           time.Duration
}

type PublishResult struct {
	MessageID    string `json:"messageId"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// PublishJSON enqueues payload for delivery to destination.
func (c *Client) PublishJSON(ctx context.Context, destination string, payload any, opts PublishOptions) (*PublishResult, error) {
	if c.token == "" {
		return nil, errors.New("qstash token is required to publish")
	}
	destination = strings.TrimSpace(destination)
	if _, err := url.ParseRequestURI(destination); err != nil {
		return nil, fmt.Errorf("invalid destination: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal qstash payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/publish/"+destination, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if opts.DeduplicationID != "" {
		req.Header.Set("Upstash-Deduplication-Id", opts.DeduplicationID)
	}
	if opts.Retries != nil {
		req.Header.Set("Upstash-Retries", strconv.Itoa(*opts.Retries))
	}
	if opts.Delay > 0 {
		req.Header.Set("Upstash-Delay", fmt.Sprintf("%ds", int64(opts.Delay.Seconds())))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute qstash request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read qstash response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qstash http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var out PublishResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode qstash response: %w", err)
	}
	return &out, nil
}

// Verify checks the Upstash-Signature of a delivered message against the
// current signing key, then the next one.
func (c *Client) Verify(signature string, body []byte, requestURL string) error {
	if c.currentSigningKey == "" && c.nextSigningKey == "" {
		return ErrNoSigningKeys
	}
	var lastErr error
	for _, key := range []string{c.currentSigningKey, c.nextSigningKey} {
		if key == "" {
			continue
		}
		if err := verifyWithKey(signature, body, requestURL, key); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

func verifyWithKey(signature string, body []byte, requestURL string, key string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signatureIssuer),
		jwt.WithLeeway(time.Second),
	}
	if requestURL != "" {
		opts = append(opts, jwt.WithSubject(requestURL))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(signature, claims, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	}, opts...); err != nil {
		return err
	}

	want, _ := claims["body"].(string)
	sum := sha256.Sum256(body)
	if strings.TrimRight(want, "=") != base64.RawURLEncoding.EncodeToString(sum[:]) {
		return errors.New("body hash mismatch")
	}
	return nil
}
