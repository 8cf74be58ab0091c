package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a chat-style completion backend used as a classifier.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, error)
}

type CallOptions struct {
	// MaxTokens caps the generated output; zero leaves the backend default.
	MaxTokens int
}

type CallOption func(*CallOptions)

func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = n }
}

func applyOptions(opts []CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
