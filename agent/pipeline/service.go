// Package pipeline assembles the message handling graph: validate, ingest,
// classify, dispatch, compose. One invocation handles one inbound message
// end to end and returns the reply to push, if any.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/go-playground/validator/v10"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
	nodex "github.com/leadloop-ai/leadloop/agent/nodes"
)

// Result is the outcome of handling one message.
type Result struct {
	// Reply is empty when nothing should be pushed to the group.
	Reply   string
	GroupID string
}

type Pipeline struct {
	messages   contractx.MessageStore
	classifier contractx.Classifier
	ledger     contractx.Ledger
	queryAgent contractx.QueryAgent
	validate   *validator.Validate

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	messages contractx.MessageStore,
	classifier contractx.Classifier,
	ledger contractx.Ledger,
	queryAgent contractx.QueryAgent,
) (*Pipeline, error) {
	if messages == nil {
		return nil, errors.New("message store is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if queryAgent == nil {
		return nil, errors.New("query agent is required")
	}

	p := &Pipeline{
		messages:   messages,
		classifier: classifier,
		ledger:     ledger,
		queryAgent: queryAgent,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
	}

	graphRunner, err := p.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.graphRunner = graphRunner

	return p, nil
}

func (p *Pipeline) HandleMessage(ctx context.Context, msg contractx.InboundMessage) (Result, error) {
	out, err := p.graphRunner.Invoke(ctx, nodex.GraphInput{Message: msg})
	if err != nil {
		return Result{}, err
	}
	return Result{Reply: out.Reply, GroupID: out.GroupID}, nil
}
