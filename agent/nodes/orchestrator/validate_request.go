// Package orchestratornode holds the steps of one conversation turn. Each
// step takes and returns the shared *GraphState so the orchestrator can
// chain them in an eino graph.
package orchestratornode

import (
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Router/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	Session *statex.SessionState

	// Category is the handler serving this turn.
	Category contractx.Category
	// Turn holds the messages produced by this turn, user message first.
	// They reach the session only through CommitTurn or SaveFailedTurn.
	Turn []*schema.Message
	// Learned are identifiers discovered during this turn.
	Learned contractx.Identifiers
	Rounds  int

	Reply            string
	Escalated        bool
	EscalationReason string
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}
