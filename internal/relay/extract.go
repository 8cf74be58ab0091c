package relay

import "fmt"

// Extract pulls the assistant text, token usage and model out of r. It has no
// side effects and never modifies r.
func Extract(r *UpstreamResponse) (Completion, error) {
	if r == nil {
		return Completion{}, fmt.Errorf("%w: empty response", ErrMalformedUpstreamResponse)
	}
	p := r.payload

	if len(p.Choices) == 0 {
		return Completion{}, fmt.Errorf("%w: choices is empty", ErrMalformedUpstreamResponse)
	}
	msg := p.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return Completion{}, fmt.Errorf("%w: choices[0].message.content is missing", ErrMalformedUpstreamResponse)
	}
	if p.Usage == nil {
		return Completion{}, fmt.Errorf("%w: usage is missing", ErrMalformedUpstreamResponse)
	}
	if p.Usage.PromptTokens == nil {
		return Completion{}, fmt.Errorf("%w: usage.prompt_tokens is missing", ErrMalformedUpstreamResponse)
	}
	if p.Usage.CompletionTokens == nil {
		return Completion{}, fmt.Errorf("%w: usage.completion_tokens is missing", ErrMalformedUpstreamResponse)
	}
	if p.Model == nil {
		return Completion{}, fmt.Errorf("%w: model is missing", ErrMalformedUpstreamResponse)
	}

	return Completion{
		Message: *msg.Content,
		Tokens: Tokens{
			PromptTokens:     *p.Usage.PromptTokens,
			CompletionTokens: *p.Usage.CompletionTokens,
		},
		Model: *p.Model,
	}, nil
}
