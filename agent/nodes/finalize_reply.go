package pipelinenode

import (
	"fmt"

	contractx "github.com/leadloop-ai/leadloop/agent/contract"
	replyx "github.com/leadloop-ai/leadloop/agent/reply"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	input := replyx.Input{
		Kind:     in.ReplyKind,
		Category: in.Classification.Category,
		Answer:   in.AnswerText,
	}
	if in.Entry != nil {
		input.LeadCode = in.Entry.LeadCode
	}

	return GraphOutput{
		Reply:   replyx.Compose(input),
		GroupID: in.Raw.GroupID,
	}, nil
}
