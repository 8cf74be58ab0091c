package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-relay/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultTotalTimeout   = 50 * time.Second

	maxResponseBytes = 8 << 20
	errorSnippet     = 4 * 1024
)

type Options struct {
	URL            string
	AuthToken      string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// Client relays submissions to one fixed upstream completion endpoint. It is
// safe for concurrent use and reuses pooled connections across calls.
type Client struct {
	url       string
	authToken string
	http      *http.Client
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("relay: upstream url is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = defaultTotalTimeout
	}
	if opts.ConnectTimeout >= opts.TotalTimeout {
		return nil, fmt.Errorf("relay: connect timeout %s must be shorter than total timeout %s", opts.ConnectTimeout, opts.TotalTimeout)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout

	return &Client{
		url:       opts.URL,
		authToken: opts.AuthToken,
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.TotalTimeout,
		},
	}, nil
}

// Relay issues exactly one POST for sub. It never retries.
func (c *Client) Relay(ctx context.Context, sub Submission) (*UpstreamResponse, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer.Start(ctx, "relay.upstream")
	defer span.End()

	resp, err := c.do(ctx, sub)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, sub Submission) (*UpstreamResponse, error) {
	b, err := json.Marshal(sub.upstreamRequest())
	if err != nil {
		return nil, &InternalError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, &InternalError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippet))
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int("relay.response_bytes", len(body)),
	)
	return ParseUpstreamResponse(body)
}

func classifyTransportError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &TimeoutError{Err: err}
	}
	return &InternalError{Err: err}
}
