package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const attemptsHeader = "x-attempts"

// HandleFunc processes one message body and returns the correlation id it
// carried, if any.
type HandleFunc func(ctx context.Context, body []byte) (string, error)

// retryPublisher is the part of *amqp.Channel used to schedule a retry.
type retryPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type ConsumerOptions struct {
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
	// Permanent reports errors that must go straight to the DLQ.
	Permanent func(error) bool
}

type Consumer struct {
	conn  *amqp.Connection
	queue string
	opts  ConsumerOptions
	log   *zap.Logger

	pubMu sync.Mutex
}

func NewConsumer(conn *amqp.Connection, queue string, opts ConsumerOptions, log *zap.Logger) *Consumer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Concurrency > 50 {
		opts.Concurrency = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Permanent == nil {
		opts.Permanent = func(error) bool { return false }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{conn: conn, queue: queue, opts: opts, log: log}
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDeadLetter
)

func decide(err error, attempts, maxAttempts int, permanent func(error) bool) action {
	switch {
	case err == nil:
		return actionAck
	case permanent(err):
		return actionDeadLetter
	case attempts+1 >= maxAttempts:
		return actionDeadLetter
	default:
		return actionRetry
	}
}

func attemptsOf(h amqp.Table) int {
	switch v := h[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// Run consumes until ctx is done, then drains in-flight messages.
func (c *Consumer) Run(ctx context.Context, handle HandleFunc) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareTopology(ch, c.queue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	// strict concurrency control
	concurrency := c.opts.Concurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.log.Info("worker started", zap.String("queue", c.queue), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.process(ctx, ch, workerID, d, handle)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return fmt.Errorf("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, ch retryPublisher, workerID int, d amqp.Delivery, handle HandleFunc) {
	start := time.Now()
	attempts := attemptsOf(d.Headers)

	correlationID, err := handle(ctx, d.Body)
	if correlationID == "" {
		correlationID = d.CorrelationId
	}
	fields := []zap.Field{
		zap.Int("worker", workerID),
		zap.String("correlation_id", correlationID),
		zap.String("message_id", d.MessageId),
		zap.Int("attempts", attempts+1),
		zap.Duration("cost", time.Since(start)),
	}

	switch decide(err, attempts, c.opts.MaxAttempts, c.opts.Permanent) {
	case actionAck:
		if err := d.Ack(false); err != nil {
			c.log.Error("ack failed", append(fields, zap.Error(err))...)
		}
	case actionRetry:
		c.log.Warn("log record write failed, scheduling retry", append(fields, zap.Error(err))...)
		if perr := c.publishRetry(ctx, ch, d, attempts+1); perr != nil {
			c.log.Error("retry publish failed", append(fields, zap.Error(perr))...)
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
	case actionDeadLetter:
		c.log.Error("log record dead-lettered", append(fields, zap.Error(err))...)
		_ = d.Nack(false, false)
	}
}

func (c *Consumer) publishRetry(ctx context.Context, ch retryPublisher, d amqp.Delivery, attempts int) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptsHeader] = int32(attempts)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	return ch.PublishWithContext(cctx, "", retryQueue(c.queue), false, false, amqp.Publishing{
		ContentType:   d.ContentType,
		DeliveryMode:  amqp.Persistent,
		MessageId:     d.MessageId,
		CorrelationId: d.CorrelationId,
		Headers:       headers,
		Body:          d.Body,
		Timestamp:     time.Now(),
		Expiration:    strconv.FormatInt(c.opts.RetryDelay.Milliseconds(), 10),
	})
}
