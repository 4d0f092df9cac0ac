package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

const currentVersion = 1

// SessionState is everything the router remembers about one conversation.
//   - Messages: role-tagged turns, append-only, fed verbatim to handlers.
//   - PendingCategory: handler that receives the next turn; empty means classify.
//   - Identifiers: sticky ids, only ever overwritten by non-empty values.
type SessionState struct {
	SessionID string `json:"session_id"`
	Version   int    `json:"version"`

	Messages        []*schema.Message     `json:"messages,omitempty"`
	PendingCategory contractx.Category    `json:"pending_category,omitempty"`
	Identifiers     contractx.Identifiers `json:"identifiers"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidCategory = errors.New("invalid pending category")
	ErrInvalidMessage  = errors.New("invalid session message")
)

func NewSessionState(sessionID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		Version:   currentVersion,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *SessionState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *SessionState) Append(msgs ...*schema.Message) {
	for _, m := range msgs {
		if m != nil {
			s.Messages = append(s.Messages, m)
		}
	}
}

// Window returns at most the last n messages. The slice is a copy; the
// messages are shared.
func (s *SessionState) Window(n int) []*schema.Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	start := max(len(s.Messages)-n, 0)
	out := make([]*schema.Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// NeedsClassification reports whether the next turn must be classified.
func (s *SessionState) NeedsClassification() bool {
	return !s.PendingCategory.HasHandler()
}

func (s *SessionState) Remember(ids contractx.Identifiers) {
	s.Identifiers = s.Identifiers.Merge(ids)
}

func (s *SessionState) Validate() error {
	if s == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if s.PendingCategory != "" && !s.PendingCategory.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, s.PendingCategory)
	}
	for i, m := range s.Messages {
		if m == nil {
			return fmt.Errorf("%w: message %d is nil", ErrInvalidMessage, i)
		}
		switch m.Role {
		case schema.User, schema.Assistant, schema.Tool:
		default:
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidMessage, i, m.Role)
		}
		if m.Role == schema.Tool && strings.TrimSpace(m.ToolCallID) == "" {
			return fmt.Errorf("%w: tool message %d has no call id", ErrInvalidMessage, i)
		}
	}
	return nil
}

func (s *SessionState) normalize() {
	if s.Version <= 0 {
		s.Version = currentVersion
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	} else {
		s.UpdatedAt = s.UpdatedAt.UTC()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.UpdatedAt
	}
}
