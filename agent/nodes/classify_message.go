package pipelinenode

import (
	"context"
	"fmt"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
)

// ClassifyMessage runs the rule engine. It also runs for duplicates: the
// dispatch step needs the category to phrase the duplicate ack, it just
// must not apply it again.
func ClassifyMessage(ctx context.Context, in *GraphState, classifier contractx.Classifier) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Classification = classifier.Classify(ctx, in.Raw)
	return in, nil
}
