package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

func FinalizeReply(in *GraphState) (contractx.TurnReply, error) {
	if in == nil || in.Session == nil {
		return contractx.TurnReply{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return contractx.TurnReply{}, fmt.Errorf("%w: handler returned empty message", contractx.ErrValidation)
	}

	category := in.Category
	if in.Escalated {
		category = contractx.CategoryEscalation
	}
	return contractx.TurnReply{
		SessionID: in.SessionID,
		Reply:     reply,
		Category:  category,
		Escalated: in.Escalated,
		Known:     in.Session.Identifiers,
	}, nil
}
