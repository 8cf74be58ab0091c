package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ackRecorder struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeued = a.requeued || requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type publishRecorder struct {
	err  error
	keys []string
	msgs []amqp.Publishing
}

func (p *publishRecorder) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.msgs = append(p.msgs, msg)
	return nil
}

func delivery(ack amqp.Acknowledger, headers amqp.Table) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger:  ack,
		DeliveryTag:   7,
		ContentType:   "application/json",
		MessageId:     "01HZZZZZZZZZZZZZZZZZZZZZZZ",
		CorrelationId: "corr-1",
		Headers:       headers,
		Body:          []byte(`{"correlation_id":"corr-1"}`),
	}
}

func newTestConsumer() *Consumer {
	return NewConsumer(nil, "api_logs", ConsumerOptions{
		MaxAttempts: 3,
		RetryDelay:  1500 * time.Millisecond,
		Permanent:   func(err error) bool { return errors.Is(err, errBad) },
	}, nil)
}

var errBad = errors.New("bad message")

func handleWith(err error) HandleFunc {
	return func(ctx context.Context, body []byte) (string, error) {
		return "corr-1", err
	}
}

func TestProcess_SuccessAcks(t *testing.T) {
	ack := &ackRecorder{}
	pub := &publishRecorder{}
	newTestConsumer().process(context.Background(), pub, 0, delivery(ack, nil), handleWith(nil))

	if ack.acks != 1 || ack.nacks != 0 || len(pub.msgs) != 0 {
		t.Fatalf("acks=%d nacks=%d publishes=%d", ack.acks, ack.nacks, len(pub.msgs))
	}
}

func TestProcess_TransientFailureRepublishesToRetryQueue(t *testing.T) {
	ack := &ackRecorder{}
	pub := &publishRecorder{}
	headers := amqp.Table{"x-source": "server", attemptsHeader: int32(1)}

	newTestConsumer().process(context.Background(), pub, 0, delivery(ack, headers), handleWith(errors.New("db down")))

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("original should be acked after retry publish: acks=%d nacks=%d", ack.acks, ack.nacks)
	}
	if len(pub.msgs) != 1 || pub.keys[0] != "api_logs.retry" {
		t.Fatalf("expected one publish to retry queue, got keys %v", pub.keys)
	}
	msg := pub.msgs[0]
	if got := attemptsOf(msg.Headers); got != 2 {
		t.Fatalf("x-attempts = %d, want 2", got)
	}
	if msg.Headers["x-source"] != "server" {
		t.Fatalf("headers not copied: %v", msg.Headers)
	}
	if msg.Expiration != "1500" {
		t.Fatalf("expiration = %q, want 1500", msg.Expiration)
	}
	if msg.CorrelationId != "corr-1" || msg.MessageId != "01HZZZZZZZZZZZZZZZZZZZZZZZ" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("message identity not preserved: %+v", msg)
	}
	if string(msg.Body) != `{"correlation_id":"corr-1"}` {
		t.Fatalf("body changed: %s", msg.Body)
	}
	if headers[attemptsHeader] != int32(1) {
		t.Fatalf("delivery headers mutated: %v", headers)
	}
}

func TestProcess_LastAttemptDeadLetters(t *testing.T) {
	ack := &ackRecorder{}
	pub := &publishRecorder{}
	d := delivery(ack, amqp.Table{attemptsHeader: int32(2)})

	newTestConsumer().process(context.Background(), pub, 0, d, handleWith(errors.New("db down")))

	if ack.nacks != 1 || ack.requeued || ack.acks != 0 || len(pub.msgs) != 0 {
		t.Fatalf("expected nack without requeue: acks=%d nacks=%d requeue=%v publishes=%d",
			ack.acks, ack.nacks, ack.requeued, len(pub.msgs))
	}
}

func TestProcess_PermanentFailureDeadLetters(t *testing.T) {
	ack := &ackRecorder{}
	pub := &publishRecorder{}

	newTestConsumer().process(context.Background(), pub, 0, delivery(ack, nil), handleWith(errBad))

	if ack.nacks != 1 || ack.requeued || len(pub.msgs) != 0 {
		t.Fatalf("bad message should go to dlq: nacks=%d publishes=%d", ack.nacks, len(pub.msgs))
	}
}

func TestProcess_RetryPublishFailureDeadLetters(t *testing.T) {
	ack := &ackRecorder{}
	pub := &publishRecorder{err: errors.New("channel closed")}

	newTestConsumer().process(context.Background(), pub, 0, delivery(ack, nil), handleWith(errors.New("db down")))

	if ack.nacks != 1 || ack.acks != 0 || ack.requeued {
		t.Fatalf("expected nack when retry cannot be published: acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

func TestPublishRetry_SurvivesCancelledContext(t *testing.T) {
	pub := &publishRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := newTestConsumer().publishRetry(ctx, pub, delivery(&ackRecorder{}, nil), 1); err != nil {
		t.Fatalf("publish retry: %v", err)
	}
	if attemptsOf(pub.msgs[0].Headers) != 1 {
		t.Fatalf("unexpected attempts header: %v", pub.msgs[0].Headers)
	}
}

func TestDecide(t *testing.T) {
	permanentErr := errors.New("bad message")
	isPermanent := func(err error) bool { return errors.Is(err, permanentErr) }
	transient := errors.New("db down")

	cases := []struct {
		name     string
		err      error
		attempts int
		want     action
	}{
		{"success acks", nil, 0, actionAck},
		{"permanent dead-letters immediately", permanentErr, 0, actionDeadLetter},
		{"transient retries", transient, 0, actionRetry},
		{"transient retries until last attempt", transient, 1, actionRetry},
		{"transient dead-letters after max attempts", transient, 2, actionDeadLetter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := decide(tc.err, tc.attempts, 3, isPermanent); got != tc.want {
				t.Fatalf("decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAttemptsOf(t *testing.T) {
	cases := []struct {
		headers amqp.Table
		want    int
	}{
		{nil, 0},
		{amqp.Table{attemptsHeader: int32(2)}, 2},
		{amqp.Table{attemptsHeader: int64(4)}, 4},
		{amqp.Table{attemptsHeader: "3"}, 3},
		{amqp.Table{attemptsHeader: 1.5}, 0},
	}
	for _, tc := range cases {
		if got := attemptsOf(tc.headers); got != tc.want {
			t.Fatalf("attemptsOf(%v) = %d, want %d", tc.headers, got, tc.want)
		}
	}
}

func TestNewConsumer_ClampsConcurrency(t *testing.T) {
	c := NewConsumer(nil, "api_logs", ConsumerOptions{Concurrency: 500}, nil)
	if c.opts.Concurrency != 50 {
		t.Fatalf("concurrency = %d, want 50", c.opts.Concurrency)
	}
	c = NewConsumer(nil, "api_logs", ConsumerOptions{}, nil)
	if c.opts.Concurrency != 2 || c.opts.MaxAttempts != 3 {
		t.Fatalf("unexpected defaults: %+v", c.opts)
	}
	if retryQueue("api_logs") != "api_logs.retry" || dlqQueue("api_logs") != "api_logs.dlq" {
		t.Fatalf("unexpected queue names")
	}
}
