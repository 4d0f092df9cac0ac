package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	nodex "github.com/tanpawarit/Chative-Support-Router/agent/nodes/orchestrator"
)

type stepFunc = func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error)

// guarded saves what the turn produced so far when step fails. The save
// uses a context that survives cancellation of the turn.
func (o *Orchestrator) guarded(name string, step stepFunc) stepFunc {
	return func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
		out, err := step(ctx, in)
		if err == nil {
			return out, nil
		}
		if saveErr := nodex.SaveFailedTurn(context.WithoutCancel(ctx), in, o.store); saveErr != nil {
			log.Error().Err(saveErr).Str("session_id", in.SessionID).Str("node", name).Msg("failed to save session after turn error")
		}
		return nil, err
	}
}

func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, contractx.TurnReply], error) {
	graph := compose.NewGraph[nodex.GraphInput, contractx.TurnReply]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	steps := []struct {
		name string
		step stepFunc
	}{
		{"load_or_create_state", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateState(ctx, in, o.store)
		}},
		{"enter_turn", o.guarded("enter_turn", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.EnterTurn(ctx, in, o.models.Classifier(), o.cfg.HistoryWindow)
		})},
		{"dispatch_handler", o.guarded("dispatch_handler", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DispatchHandler(ctx, in, o.models, o.tools, o.cfg.MaxToolRounds)
		})},
		{"escalate", o.guarded("escalate", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Escalate(ctx, in, o.notifier)
		})},
		{"commit_turn", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.CommitTurn(in)
		}},
		{"save_state", func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SaveState(ctx, in, o.store)
		}},
	}
	for _, s := range steps {
		if err := graph.AddLambdaNode(s.name, compose.InvokableLambda(s.step)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", s.name, err)
		}
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (contractx.TurnReply, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	routeCategory := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
			}
			if in.Category == contractx.CategoryEscalation {
				return "escalate", nil
			}
			return "dispatch_handler", nil
		},
		map[string]bool{"escalate": true, "dispatch_handler": true},
	)
	if err := graph.AddBranch("enter_turn", routeCategory); err != nil {
		return nil, fmt.Errorf("add branch enter_turn: %w", err)
	}

	routeOutcome := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
			}
			if in.Escalated {
				return "escalate", nil
			}
			return "commit_turn", nil
		},
		map[string]bool{"escalate": true, "commit_turn": true},
	)
	if err := graph.AddBranch("dispatch_handler", routeOutcome); err != nil {
		return nil, fmt.Errorf("add branch dispatch_handler: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_state"},
		{"load_or_create_state", "enter_turn"},
		{"escalate", "commit_turn"},
		{"commit_turn", "save_state"},
		{"save_state", "finalize_reply"},
		{"finalize_reply", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
