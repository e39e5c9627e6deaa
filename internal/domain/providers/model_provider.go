package providers

import "context"

// JSONModel is a language model constrained to answer with a single JSON document.
// Implementations return the raw text of the answer; parsing belongs to the caller.
type JSONModel interface {
	Name() string
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
