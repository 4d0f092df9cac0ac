// Package escalation hands escalated conversations to human support by
// publishing a ticket through QStash.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	"github.com/tanpawarit/Chative-Support-Router/pkg/qstash"
)

const defaultRetries = 3

type Config struct {
	// Destination receives the ticket, e.g. a helpdesk webhook.
	Destination string `envconfig:"ESCALATION_URL"`
	Retries     int    `envconfig:"ESCALATION_RETRIES" default:"3"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Destination) != ""
}

// Ticket is the payload delivered to the destination.
type Ticket struct {
	SessionID   string                `json:"session_id"`
	Reason      string                `json:"reason,omitempty"`
	UserMessage string                `json:"user_message"`
	Identifiers contractx.Identifiers `json:"identifiers"`
	From        contractx.Category    `json:"from"`
	CreatedAt   time.Time             `json:"created_at"`
}

type publisher interface {
	PublishJSON(ctx context.Context, destination string, payload any, opts qstash.PublishOptions) (*qstash.PublishResult, error)
}

type QStashNotifier struct {
	client      publisher
	destination string
	retries     int
	now         func() time.Time
}

var _ contractx.EscalationNotifier = (*QStashNotifier)(nil)

func NewQStashNotifier(client *qstash.Client, cfg Config) (*QStashNotifier, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	return newQStashNotifier(client, cfg)
}

func newQStashNotifier(client publisher, cfg Config) (*QStashNotifier, error) {
	destination := strings.TrimSpace(cfg.Destination)
	if destination == "" {
		return nil, errors.New("escalation destination is required")
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = defaultRetries
	}
	return &QStashNotifier{
		client:      client,
		destination: destination,
		retries:     retries,
		now:         time.Now,
	}, nil
}

func (n *QStashNotifier) NotifyEscalation(ctx context.Context, e contractx.Escalation) error {
	ticket := Ticket{
		SessionID:   e.SessionID,
		Reason:      e.Reason,
		UserMessage: e.UserMessage,
		Identifiers: e.Identifiers,
		From:        e.From,
		CreatedAt:   n.now().UTC(),
	}
	retries := n.retries
	res, err := n.client.PublishJSON(ctx, n.destination, ticket, qstash.PublishOptions{
		DeduplicationID: fmt.Sprintf("%s-%d", e.SessionID, ticket.CreatedAt.Unix()),
		Retries:         &retries,
	})
	if err != nil {
		return fmt.Errorf("publish escalation ticket: %w", err)
	}
	log.Info().Str("session_id", e.SessionID).Str("message_id", res.MessageID).Msg("escalation ticket published")
	return nil
}

// LogNotifier only logs escalations. It is used when no destination is
// configured.
type LogNotifier struct{}

func (LogNotifier) NotifyEscalation(_ context.Context, e contractx.Escalation) error {
	log.Info().
		Str("session_id", e.SessionID).
		Str("from", string(e.From)).
		Str("reason", e.Reason).
		Msg("conversation escalated to human support")
	return nil
}
