package orchestratornode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Router/agent/state"
)

// CommitTurn moves the turn's messages, category and learned identifiers
// into the session. An escalated turn clears the pending category so the
// next message is classified again.
func CommitTurn(in *GraphState) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.Session.Append(in.Turn...)
	in.Session.Remember(in.Learned)
	if in.Escalated {
		in.Session.PendingCategory = ""
	} else {
		in.Session.PendingCategory = in.Category
	}
	in.Session.Touch(in.Now)
	return in, nil
}

func SaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	if err := in.Session.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return in, nil
}

// SaveFailedTurn keeps what a failed turn produced without committing its
// category or identifiers. A trailing tool-call message whose results are
// missing is dropped so the history stays replayable.
func SaveFailedTurn(ctx context.Context, in *GraphState, store statex.Store) error {
	if in == nil || in.Session == nil || len(in.Turn) == 0 {
		return nil
	}

	in.Session.Append(answeredPrefix(in.Turn)...)
	in.Session.Touch(in.Now)
	in.Turn = nil
	return store.Save(ctx, in.Session)
}

// answeredPrefix returns the longest prefix of msgs in which every
// assistant tool call is followed by its tool messages.
func answeredPrefix(msgs []*schema.Message) []*schema.Message {
	end := 0
	pending := map[string]bool{}
	for i, m := range msgs {
		if m == nil {
			continue
		}
		switch {
		case m.Role == schema.Assistant && len(m.ToolCalls) > 0:
			for _, call := range m.ToolCalls {
				pending[call.ID] = true
			}
		case m.Role == schema.Tool:
			delete(pending, m.ToolCallID)
		}
		if len(pending) == 0 {
			end = i + 1
		}
	}
	return msgs[:end]
}
