package llm

import (
	"context"

	"dinnerplan/internal/shared"
)

// GenerateRequest is one structured generation call.
type GenerateRequest struct {
	SystemInstruction string
	Prompt            string
	// Schema constrains the JSON document returned in the candidate text.
	// Nil means free text.
	Schema *Schema
}

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// Generator produces content from a prompt. Implementations retry transient
// failures internally.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (ContentResponse, error)
}
