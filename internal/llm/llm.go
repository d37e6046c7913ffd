package llm

import "context"

// Request is one role-annotated prompt for the generation capability.
type Request struct {
	// System frames the role the model should play for this call.
	System string
	// Prompt carries the task-specific content.
	Prompt string
}

// Client is the uniform interface to the external text-generation
// capability. Implementations return the raw generated text; callers decide
// whether a failure is worth retrying.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}
