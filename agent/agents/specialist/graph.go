package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

const knownIdentifiersLine = "Known identifiers: {known}"

func compileClassifierGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, classifierLLMOutput], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.SystemMessage(knownIdentifiersLine),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{message}"),
	)
	runner, err := compileStructuredLLMGraph[classifierLLMOutput](ctx, chatModel, template, "classifier.model_graph")
	if err != nil {
		return nil, fmt.Errorf("compile classifier graph: %w", err)
	}
	return runner, nil
}

func compileHandlerGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.SystemMessage(knownIdentifiersLine),
		schema.MessagesPlaceholder("messages", false),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add handler prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add handler model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add handler edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add handler edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add handler edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile handler graph: %w", err)
	}
	return runner, nil
}

func compileStructuredLLMGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	template einoprompt.ChatTemplate,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})
	parse := func(ctx context.Context, msg *schema.Message) (T, error) {
		out, err := parser.Parse(ctx, msg)
		if err != nil {
			return out, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
		}
		return out, nil
	}

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("extract_json", compose.InvokableLambda(extractJSONObject)); err != nil {
		return nil, fmt.Errorf("add structured extract node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.InvokableLambda(parse)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add structured edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add structured edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "extract_json"); err != nil {
		return nil, fmt.Errorf("add structured edge model->extract: %w", err)
	}
	if err := graph.AddEdge("extract_json", "parse_json"); err != nil {
		return nil, fmt.Errorf("add structured edge extract->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add structured edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return runner, nil
}

// extractJSONObject keeps the outermost JSON object of the reply so that
// code fences or a leading sentence do not break parsing.
func extractJSONObject(_ context.Context, msg *schema.Message) (*schema.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("model returned no message")
	}
	content := msg.Content
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: model reply has no JSON object: %q", contractx.ErrSchemaViolation, content)
	}
	out := *msg
	out.Content = content[start : end+1]
	return &out, nil
}

func describeKnown(ids contractx.Identifiers) string {
	return fmt.Sprintf("customer_id=%s, product_id=%s, order_id=%s",
		orUnknown(ids.CustomerID), orUnknown(ids.ProductID), orUnknown(ids.OrderID))
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
