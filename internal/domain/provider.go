package domain

import "context"

// Provider is the interface all LLM providers must implement. The engine
// only ever needs single-prompt text generation; there is no tool calling
// and no multi-turn message array at this boundary.
type Provider interface {
	// Generate submits one prompt and returns the model's text.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Name() string
	Models() []string
	Healthy(ctx context.Context) error
}

// GenerateRequest is a single text-generation call.
type GenerateRequest struct {
	Prompt string

	// ExpectJSON hints that the caller will parse the response as JSON.
	// Providers that support constrained output forward it (response MIME
	// type, response_format, format); parsing stays with the caller.
	ExpectJSON bool

	Model       string
	MaxTokens   int
	Temperature float64
}

// GenerateResponse carries the raw model text and call metadata.
type GenerateResponse struct {
	Text      string
	LatencyMs int64
	Usage     Usage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Gateway is the sole boundary the orchestration components call to reach
// the model. Implementations apply the call timeout and map provider
// failures into the GatewayError taxonomy; they never retry and never parse.
type Gateway interface {
	Invoke(ctx context.Context, prompt string, expectJSON bool) (string, error)
}
