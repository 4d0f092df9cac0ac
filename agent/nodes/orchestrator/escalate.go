package orchestratornode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

const EscalationReply = "Escalating to human support. A representative will contact you shortly."

// Escalate replies with the fixed hand-off text and notifies human support.
// A failed notification is logged and does not fail the turn.
func Escalate(ctx context.Context, in *GraphState, notifier contractx.EscalationNotifier) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.Escalated = true
	in.Reply = EscalationReply
	in.Turn = append(in.Turn, schema.AssistantMessage(EscalationReply, nil))

	if notifier == nil {
		return in, nil
	}
	err := notifier.NotifyEscalation(ctx, contractx.Escalation{
		SessionID:   in.SessionID,
		Reason:      in.EscalationReason,
		UserMessage: in.Text,
		Identifiers: in.Session.Identifiers.Merge(in.Learned),
		From:        in.Category,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("escalation notification failed")
	}
	return in, nil
}
