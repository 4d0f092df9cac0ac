package orchestratornode

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	toolx "github.com/tanpawarit/Chative-Support-Router/agent/tool"
)

// DispatchHandler runs the category's handler until it replies or asks to
// escalate. Each round of tool calls is executed through tools and fed back
// as tool messages; more than maxRounds rounds fail the turn.
func DispatchHandler(
	ctx context.Context,
	in *GraphState,
	registry contractx.Registry,
	tools contractx.ToolGateway,
	maxRounds int,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	handler, err := contractx.HandlerFor(registry, in.Category)
	if err != nil {
		return nil, err
	}

	for {
		resp, err := handler.Respond(ctx, contractx.HandlerRequest{
			Category: in.Category,
			Messages: slices.Concat(in.Session.Messages, in.Turn),
			Known:    in.Session.Identifiers.Merge(in.Learned),
		})
		if err != nil {
			return nil, err
		}

		if resp.Escalate {
			in.Escalated = true
			in.EscalationReason = resp.EscalationReason
			return in, nil
		}
		if len(resp.ToolRequests) == 0 {
			in.Reply = resp.Reply
			if resp.Message == nil {
				resp.Message = schema.AssistantMessage(resp.Reply, nil)
			}
			in.Turn = append(in.Turn, resp.Message)
			return in, nil
		}

		if in.Rounds >= maxRounds {
			return nil, fmt.Errorf("%w: %s handler asked for round %d of %d", contractx.ErrToolLoopExceeded, in.Category, in.Rounds+1, maxRounds)
		}
		for _, req := range resp.ToolRequests {
			if !toolx.Allowed(in.Category, req.Tool) || req.Tool == toolx.ToolEscalateToHuman {
				return nil, fmt.Errorf("%w: %s may not call %q", contractx.ErrToolNotAllowed, in.Category, req.Tool)
			}
		}
		in.Rounds++

		results, err := tools.Execute(ctx, in.Category, resp.ToolRequests)
		if err != nil {
			return nil, err
		}
		if len(results) != len(resp.ToolRequests) {
			return nil, fmt.Errorf("%w: %d tool requests produced %d results", contractx.ErrValidation, len(resp.ToolRequests), len(results))
		}

		if resp.Message == nil {
			resp.Message = toolCallMessage(resp.ToolRequests)
		}
		in.Turn = append(in.Turn, resp.Message)
		for i, res := range results {
			in.Turn = append(in.Turn, schema.ToolMessage(toolPayload(res), res.CallID))
			in.Learned = in.Learned.Merge(toolx.LearnedIdentifiers(resp.ToolRequests[i], res))
		}
		log.Debug().
			Str("session_id", in.SessionID).
			Str("category", string(in.Category)).
			Int("round", in.Rounds).
			Int("tool_calls", len(results)).
			Msg("tool round completed")
	}
}

// toolPayload renders a tool result as the JSON text of a tool message.
func toolPayload(res contractx.ToolResult) string {
	var v any = res.Result
	if !res.OK() {
		v = map[string]string{"error": res.Error}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"error": fmt.Sprintf("encode %s result: %v", res.Tool, err)})
	}
	return string(raw)
}

// toolCallMessage rebuilds the assistant message for a tool round when the
// handler did not return one.
func toolCallMessage(reqs []contractx.ToolRequest) *schema.Message {
	calls := make([]schema.ToolCall, 0, len(reqs))
	for _, req := range reqs {
		args, _ := json.Marshal(req.Args)
		calls = append(calls, schema.ToolCall{
			ID:       req.ID,
			Type:     "function",
			Function: schema.FunctionCall{Name: req.Tool, Arguments: string(args)},
		})
	}
	return schema.AssistantMessage("", calls)
}
