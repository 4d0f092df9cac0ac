package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	toolx "github.com/tanpawarit/Chative-Support-Router/agent/tool"
)

// escalationMarker is accepted in reply text as well as through the
// escalate_to_human tool.
const escalationMarker = "ESCALATE_TO_HUMAN"

type handlerImpl struct {
	category contractx.Category
	runner   compose.Runnable[map[string]any, *schema.Message]
}

func newHandler(
	ctx context.Context,
	category contractx.Category,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
) (*handlerImpl, error) {
	if !category.HasHandler() {
		return nil, fmt.Errorf("%w: no handler for category=%s", contractx.ErrUnknownCategory, category)
	}
	toolModel, err := chatModel.WithTools(toolx.InfosFor(category))
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for handler=%s: %v", contractx.ErrModelInvoke, category, err)
	}
	runner, err := compileHandlerGraph(ctx, toolModel, systemPrompt, "handler."+string(category))
	if err != nil {
		return nil, fmt.Errorf("%w: compile handler graph: %v", contractx.ErrModelInvoke, err)
	}
	return &handlerImpl{category: category, runner: runner}, nil
}

func (h *handlerImpl) Respond(ctx context.Context, req contractx.HandlerRequest) (contractx.HandlerResponse, error) {
	if len(req.Messages) == 0 {
		return contractx.HandlerResponse{}, fmt.Errorf("%w: handler needs at least one message", contractx.ErrValidation)
	}
	if req.Category != "" && req.Category != h.category {
		return contractx.HandlerResponse{}, fmt.Errorf("%w: %s handler got a %s request", contractx.ErrValidation, h.category, req.Category)
	}

	msg, err := h.runner.Invoke(ctx, map[string]any{
		"known":    describeKnown(req.Known),
		"messages": req.Messages,
	})
	if err != nil {
		return contractx.HandlerResponse{}, fmt.Errorf("%w: %s handler invoke: %v", contractx.ErrModelInvoke, h.category, err)
	}
	if msg == nil {
		return contractx.HandlerResponse{}, fmt.Errorf("%w: empty %s handler response", contractx.ErrSchemaViolation, h.category)
	}
	return h.interpret(msg)
}

// interpret maps a generated message onto a handler response. Escalation
// wins over tool calls, and tool calls win over a final reply.
func (h *handlerImpl) interpret(msg *schema.Message) (contractx.HandlerResponse, error) {
	content := strings.TrimSpace(msg.Content)

	requests, escalate, reason, err := h.toToolRequests(msg.ToolCalls)
	if err != nil {
		return contractx.HandlerResponse{}, err
	}
	if !escalate && strings.Contains(content, escalationMarker) {
		escalate = true
	}
	if escalate {
		if reason == "" {
			reason = strings.TrimSpace(strings.ReplaceAll(content, escalationMarker, ""))
		}
		return contractx.HandlerResponse{Escalate: true, EscalationReason: reason}, nil
	}

	if len(requests) > 0 {
		calls := make([]schema.ToolCall, len(msg.ToolCalls))
		copy(calls, msg.ToolCalls)
		for i := range calls {
			calls[i].ID = requests[i].ID
		}
		return contractx.HandlerResponse{
			Message:      schema.AssistantMessage(msg.Content, calls),
			ToolRequests: requests,
		}, nil
	}

	if content == "" {
		return contractx.HandlerResponse{}, fmt.Errorf("%w: %s handler returned neither text nor tool calls", contractx.ErrSchemaViolation, h.category)
	}
	return contractx.HandlerResponse{
		Message: schema.AssistantMessage(content, nil),
		Reply:   content,
	}, nil
}

func (h *handlerImpl) toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, bool, string, error) {
	if len(calls) == 0 {
		return nil, false, "", nil
	}

	var (
		escalate bool
		reason   string
	)
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		tool := strings.TrimSpace(call.Function.Name)
		if tool == "" {
			return nil, false, "", fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		if !toolx.Allowed(h.category, tool) {
			return nil, false, "", fmt.Errorf("%w: tool=%s is not allowed for handler=%s", contractx.ErrSchemaViolation, tool, h.category)
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, false, "", fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, tool, err)
			}
		}

		if tool == toolx.ToolEscalateToHuman {
			escalate = true
			if v, ok := args["reason"].(string); ok && reason == "" {
				reason = strings.TrimSpace(v)
			}
			continue
		}

		id := strings.TrimSpace(call.ID)
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		reqs = append(reqs, contractx.ToolRequest{ID: id, Tool: tool, Args: args})
	}
	return reqs, escalate, reason, nil
}
