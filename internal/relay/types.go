package relay

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Submission is the caller's text as received. StyleExample is nil when the
// caller supplied no style hint; it is then omitted from the upstream body.
// Messages is only set for the conversation shape and is relayed as-is.
type Submission struct {
	Text         string
	StyleExample *string
	Messages     []Message
}

func NewSubmission(text string, styleExample *string) Submission {
	return Submission{Text: text, StyleExample: styleExample}
}

// ConversationSubmission relays msgs verbatim. Text becomes the content of
// the last user message so the log record still carries the caller's input.
func ConversationSubmission(msgs []Message) Submission {
	out := make([]Message, len(msgs))
	copy(out, msgs)

	var text string
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == "user" {
			text = out[i].Content
			break
		}
	}
	return Submission{Text: text, Messages: out}
}

func (s Submission) Validate() error {
	for i, m := range s.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return fmt.Errorf("%w: messages[%d] has unsupported role %q", ErrValidation, i, m.Role)
		}
	}
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("%w: submission text is empty", ErrValidation)
	}
	return nil
}

type upstreamRequest struct {
	Messages     []Message `json:"messages"`
	StyleExample *string   `json:"style_example,omitempty"`
}

func (s Submission) upstreamRequest() upstreamRequest {
	if len(s.Messages) > 0 {
		return upstreamRequest{Messages: s.Messages, StyleExample: s.StyleExample}
	}
	return upstreamRequest{
		Messages:     []Message{{Role: "user", Content: s.Text}},
		StyleExample: s.StyleExample,
	}
}

// UpstreamResponse keeps the verbatim body for auditing next to a decoded
// view whose pointer fields tell "absent" apart from zero values.
type UpstreamResponse struct {
	Raw     json.RawMessage
	payload upstreamPayload
}

type upstreamPayload struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
	} `json:"usage"`
	Model *string `json:"model"`
}

// ParseUpstreamResponse decodes a success body. The bytes are retained as-is.
func ParseUpstreamResponse(body []byte) (*UpstreamResponse, error) {
	var p upstreamPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpstreamResponse, err)
	}
	raw := make(json.RawMessage, len(body))
	copy(raw, body)
	return &UpstreamResponse{Raw: raw, payload: p}, nil
}

type Tokens struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type Completion struct {
	Message string `json:"message"`
	Tokens  Tokens `json:"tokens"`
	Model   string `json:"model"`
}

// Result is what a caller of /submit receives.
type Result struct {
	ID string `json:"id"`
	Completion
}
