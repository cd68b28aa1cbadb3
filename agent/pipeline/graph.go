package pipeline

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/leadloop-ai/leadloop/agent/nodes"
)

func (p *Pipeline) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_inbound",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateInbound(in, p.validate, p.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_inbound: %w", err)
	}

	if err := graph.AddLambdaNode("ingest_message",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.IngestMessage(ctx, in, p.messages)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node ingest_message: %w", err)
	}

	if err := graph.AddLambdaNode("classify_message",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyMessage(ctx, in, p.classifier)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_message: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_intent",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DispatchIntent(ctx, in, p.ledger, p.queryAgent)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_intent: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_inbound"},
		{"validate_inbound", "ingest_message"},
		{"ingest_message", "classify_message"},
		{"classify_message", "dispatch_intent"},
		{"dispatch_intent", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("pipeline.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile message graph: %w", err)
	}
	return runner, nil
}
