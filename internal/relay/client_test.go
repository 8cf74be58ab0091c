package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const okPayload = `{"id":"cmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello there"}}],"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19},"model":"gpt-4-0613"}`

func newTestClient(t *testing.T, url string, total time.Duration) *Client {
	t.Helper()
	c, err := NewClient(Options{
		URL:            url,
		AuthToken:      "test-token",
		ConnectTimeout: total / 4,
		TotalTimeout:   total,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestRelay_SendsRequestAndReturnsPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if tok := r.Header.Get("X-Auth-Token"); tok != "test-token" {
			t.Errorf("unexpected auth token %q", tok)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okPayload)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2*time.Second)
	resp, err := c.Relay(context.Background(), NewSubmission("hello", nil))
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if string(resp.Raw) != okPayload {
		t.Fatalf("raw payload changed: %s", resp.Raw)
	}

	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", gotBody["messages"])
	}
	m := msgs[0].(map[string]any)
	if m["role"] != "user" || m["content"] != "hello" {
		t.Fatalf("unexpected message %v", m)
	}
	if _, present := gotBody["style_example"]; present {
		t.Fatalf("style_example must be omitted when absent")
	}
}

func TestRelay_ForwardsStyleExample(t *testing.T) {
	var gotStyle any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotStyle = body["style_example"]
		_, _ = io.WriteString(w, okPayload)
	}))
	defer srv.Close()

	style := "write like a pirate"
	c := newTestClient(t, srv.URL, 2*time.Second)
	if _, err := c.Relay(context.Background(), NewSubmission("hello", &style)); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if gotStyle != style {
		t.Fatalf("unexpected style_example %v", gotStyle)
	}
}

func TestRelay_UpstreamStatusIsPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2*time.Second)
	_, err := c.Relay(context.Background(), NewSubmission("hello", nil))

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %T %v", err, err)
	}
	if ue.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", ue.StatusCode)
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		t.Fatalf("upstream error must not be a timeout")
	}
}

func TestRelay_TotalTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	const total = 300 * time.Millisecond
	c := newTestClient(t, srv.URL, total)

	start := time.Now()
	_, err := c.Relay(context.Background(), NewSubmission("hello", nil))
	elapsed := time.Since(start)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %T %v", err, err)
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		t.Fatalf("timeout must not be an upstream error")
	}
	if elapsed < total-50*time.Millisecond || elapsed > total+time.Second {
		t.Fatalf("timeout fired after %s, configured %s", elapsed, total)
	}
}

func TestRelay_NonJSONSuccessBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>gateway</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2*time.Second)
	_, err := c.Relay(context.Background(), NewSubmission("hello", nil))
	if !errors.Is(err, ErrMalformedUpstreamResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestRelay_ConnectionFailureIsInternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, 2*time.Second)
	_, err := c.Relay(context.Background(), NewSubmission("hello", nil))

	var ie *InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InternalError, got %T %v", err, err)
	}
}

func TestRelay_EmptySubmissionMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2*time.Second)
	_, err := c.Relay(context.Background(), NewSubmission("   ", nil))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no upstream call, got %d", calls.Load())
	}
}

func TestRelay_ExactlyOneCallOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2*time.Second)
	_, _ = c.Relay(context.Background(), NewSubmission("hello", nil))
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", calls.Load())
	}
}

func TestNewClient_RejectsConnectNotShorterThanTotal(t *testing.T) {
	_, err := NewClient(Options{
		URL:            "http://example.invalid",
		ConnectTimeout: 10 * time.Second,
		TotalTimeout:   10 * time.Second,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestConversationSubmission_UsesLastUserMessage(t *testing.T) {
	sub := ConversationSubmission([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "second"},
	})
	if sub.Text != "second" {
		t.Fatalf("unexpected text %q", sub.Text)
	}
	if err := sub.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	bad := ConversationSubmission([]Message{{Role: "robot", Content: "x"}})
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown role, got %v", err)
	}
	onlySystem := ConversationSubmission([]Message{{Role: "system", Content: "x"}})
	if err := onlySystem.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without a user message, got %v", err)
	}
}
