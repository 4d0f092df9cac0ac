package specialist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

type classifierImpl struct {
	runner compose.Runnable[map[string]any, classifierLLMOutput]
}

type classifierLLMOutput struct {
	Category   string `json:"category"`
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
	OrderID    string `json:"order_id"`
}

func newClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*classifierImpl, error) {
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	return &classifierImpl{runner: runner}, nil
}

func (c *classifierImpl) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.Classification, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return contractx.Classification{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{
		"history": conversationOnly(req.History),
		"known":   describeKnown(req.Known),
		"message": message,
	})
	if errors.Is(err, contractx.ErrSchemaViolation) {
		return contractx.Classification{}, fmt.Errorf("classifier reply: %w", err)
	}
	if err != nil {
		return contractx.Classification{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	category, err := contractx.ParseCategory(out.Category)
	if err != nil {
		return contractx.Classification{}, fmt.Errorf("%w: %w", contractx.ErrSchemaViolation, err)
	}

	return contractx.Classification{
		Category: category,
		Identifiers: contractx.Identifiers{
			CustomerID: strings.TrimSpace(out.CustomerID),
			ProductID:  strings.TrimSpace(out.ProductID),
			OrderID:    strings.TrimSpace(out.OrderID),
		},
	}, nil
}

// conversationOnly reduces history to plain user and assistant text. Tool
// traffic is dropped because the classifier model has no tools bound and a
// window may start in the middle of a tool exchange.
func conversationOnly(history []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case schema.User:
			out = append(out, schema.UserMessage(m.Content))
		case schema.Assistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}
