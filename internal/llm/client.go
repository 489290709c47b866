// Package llm wraps the language-model collaborator behind a small fallible
// interface so the chat engine can be tested with a deterministic fake.
package llm

import "context"

// Completion is one model response with token accounting.
type Completion struct {
	Content      string
	TokensInput  int
	TokensOutput int
}

// Client is a single text-completion capability. Implementations must honor
// ctx cancellation and apply their own request timeout; callers treat every
// call as unreliable.
type Client interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
}
