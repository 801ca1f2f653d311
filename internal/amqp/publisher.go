package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"expensedash/internal/log"
	"expensedash/internal/store"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures      = 5
	openTimeout      = 30 * time.Second
	publishTimeout   = 5 * time.Second
	dialTimeout      = 5 * time.Second
	heartbeat        = 10 * time.Second
	maxBackoff       = 30 * time.Second
	reconnectRetries = 3
	queueSize        = 256
	drainTimeout     = 5 * time.Second
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrQueueFull   = errors.New("publish queue is full")
	ErrClosed      = errors.New("publisher is closed")
)

// Publisher sends store events to a direct exchange. Publish only queues the
// event; a single goroutine delivers queued events, so it is the only one that
// ever reconnects. Delivery stops for openTimeout after maxFailures
// consecutive failures.
type Publisher struct {
	url          string
	exchangeName string
	queueName    string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time

	events    chan store.Event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	send      func(context.Context, store.Event) error
}

// NewPublisher connects to url, declares a durable exchange and a queue
// bound to it with queueName as routing key, and starts delivering.
func NewPublisher(url, exchangeName, queueName string, logger *log.Logger) (*Publisher, error) {
	p := newPublisher(url, exchangeName, queueName, logger)
	if err := p.connect(); err != nil {
		p.cancel()
		return nil, err
	}
	p.start()
	return p, nil
}

func newPublisher(url, exchangeName, queueName string, logger *log.Logger) *Publisher {
	p := &Publisher{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
		events:       make(chan store.Event, queueSize),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.send = p.sendAMQP
	return p
}

func (p *Publisher) start() {
	go p.run()
}

// connect dials the broker and replaces the current connection, closing the
// previous one.
func (p *Publisher) connect() error {
	conn, err := amqp091.DialConfig(p.url, amqp091.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp091.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, p.exchangeName, p.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	p.mu.Lock()
	oldConn, oldChannel := p.conn, p.channel
	p.conn, p.channel = conn, channel
	p.mu.Unlock()

	if oldChannel != nil {
		oldChannel.Close()
	}
	if oldConn != nil {
		oldConn.Close()
	}
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish implements store.EventPublisher. It queues e and returns without
// waiting on the broker; delivery failures are logged by the publisher.
func (p *Publisher) Publish(ctx context.Context, e store.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", e.Kind, ErrCircuitOpen)
	}

	select {
	case <-p.done:
		return fmt.Errorf("publish %s: %w", e.Kind, ErrClosed)
	default:
	}
	select {
	case p.events <- e:
		return nil
	default:
		return fmt.Errorf("publish %s: %w", e.Kind, ErrQueueFull)
	}
}

// run delivers queued events until Close, then drains what is left.
func (p *Publisher) run() {
	defer close(p.stopped)
	for {
		select {
		case e := <-p.events:
			p.deliver(e)
		case <-p.done:
			for {
				select {
				case e := <-p.events:
					p.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(e store.Event) {
	if p.isCircuitOpen() {
		p.logger.Warn("Dropping store event, circuit breaker is open", log.FieldEvent, string(e.Kind))
		return
	}
	if err := p.send(p.ctx, e); err != nil {
		p.logger.Error("Failed to deliver store event",
			log.FieldEvent, string(e.Kind),
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}

// sendAMQP publishes e on the current channel, reconnecting first if needed.
func (p *Publisher) sendAMQP(ctx context.Context, e store.Event) error {
	body, err := NewChangeMessage(e).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := p.ensureChannel(ctx)
	if err != nil {
		p.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		p.exchangeName, // exchange
		p.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    e.At,
			Type:         string(e.Kind),
			Body:         body,
		},
	)
	if err != nil {
		p.recordFailure()
		if isConnectionError(err) {
			p.dropConnection()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	p.recordSuccess()

	p.logger.DebugContext(ctx, "Published store event",
		log.FieldEvent, string(e.Kind),
		log.FieldExpenseID, e.Expense.ID,
		"exchange", p.exchangeName)
	return nil
}

// ensureChannel returns the open channel, reconnecting with exponential
// backoff when the previous connection was lost.
func (p *Publisher) ensureChannel(ctx context.Context) (*amqp091.Channel, error) {
	p.mu.Lock()
	ch := p.channel
	p.mu.Unlock()
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	var err error
	for attempt := 0; attempt < reconnectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}
		if err = p.connect(); err == nil {
			p.logger.InfoContext(ctx, "Reconnected to AMQP broker", "attempt", attempt+1)
			p.mu.Lock()
			ch = p.channel
			p.mu.Unlock()
			return ch, nil
		}
		p.logger.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt+1, log.FieldError, err)
	}
	return nil, fmt.Errorf("reconnect: %w", err)
}

func (p *Publisher) dropConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) isCircuitOpen() bool {
	switch atomic.LoadInt32(&p.state) {
	case StateOpen:
		p.mu.Lock()
		expired := time.Since(p.lastFailure) > openTimeout
		p.mu.Unlock()
		if expired {
			atomic.CompareAndSwapInt32(&p.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (p *Publisher) recordSuccess() {
	atomic.StoreInt64(&p.failureCount, 0)
	atomic.StoreInt32(&p.state, StateClosed)
}

func (p *Publisher) recordFailure() {
	p.mu.Lock()
	p.lastFailure = time.Now()
	p.mu.Unlock()

	// a failure while half-open re-opens immediately
	if atomic.AddInt64(&p.failureCount, 1) >= maxFailures || atomic.LoadInt32(&p.state) == StateHalfOpen {
		atomic.StoreInt32(&p.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection closed", "EOF", "broken pipe", "use of closed network connection", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Close stops accepting events, gives queued ones drainTimeout to be
// delivered and closes the connection.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	select {
	case <-p.stopped:
	case <-time.After(drainTimeout):
		p.logger.Warn("Publish queue not drained before close", "pending", len(p.events))
		p.cancel()
		<-p.stopped
	}
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
