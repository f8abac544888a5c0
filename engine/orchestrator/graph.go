package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

func (o *Service) compileOrchestrateGraph(ctx context.Context) (compose.Runnable[GraphInput, GraphOutput], error) {
	graph := compose.NewGraph[GraphInput, GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in GraphInput) (*GraphState, error) {
			return o.validateRequest(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_state",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return o.loadState(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_state: %w", err)
	}

	if err := graph.AddLambdaNode("route",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return o.route(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node route: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_handlers",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return o.dispatchHandlers(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_handlers: %w", err)
	}

	if err := graph.AddLambdaNode("invoke_front",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return o.invokeFront(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node invoke_front: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (GraphOutput, error) {
			return o.finalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_state"},
		{"load_state", "route"},
		{"route", "dispatch_handlers"},
		{"dispatch_handlers", "invoke_front"},
		{"invoke_front", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("engine.orchestrate"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrate graph: %w", err)
	}
	return runner, nil
}
