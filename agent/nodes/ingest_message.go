package pipelinenode

import (
	"context"
	"fmt"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

func IngestMessage(ctx context.Context, in *GraphState, store contractx.MessageStore) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	res, err := store.Ingest(ctx, in.Raw)
	if err != nil {
		return nil, err
	}
	in.IsNew = res.IsNew
	in.Raw = res.Stored
	return in, nil
}
