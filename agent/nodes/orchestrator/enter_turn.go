package orchestratornode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

// EnterTurn records the user message and picks the category. A session
// with a pending handler category keeps it; otherwise the classifier sees
// the last historyWindow messages plus the new one.
func EnterTurn(ctx context.Context, in *GraphState, classifier contractx.Classifier, historyWindow int) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.Turn = append(in.Turn, schema.UserMessage(in.Text))

	if !in.Session.NeedsClassification() {
		in.Category = in.Session.PendingCategory
		log.Debug().Str("session_id", in.SessionID).Str("category", string(in.Category)).Msg("routing to pending handler")
		return in, nil
	}

	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is not configured", contractx.ErrValidation)
	}
	out, err := classifier.Classify(ctx, contractx.ClassifyRequest{
		History: in.Session.Window(historyWindow),
		Message: in.Text,
		Known:   in.Session.Identifiers,
	})
	if err != nil {
		return nil, err
	}

	in.Category = out.Category
	in.Learned = in.Learned.Merge(out.Identifiers)
	log.Debug().Str("session_id", in.SessionID).Str("category", string(in.Category)).Msg("message classified")
	return in, nil
}
