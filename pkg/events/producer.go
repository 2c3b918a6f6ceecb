package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/noah-isme/voter-support-api/pkg/config"
)

// Support request lifecycle event types.
const (
	SupportRequestSubmitted     = "chat_support.submitted"
	SupportRequestStatusChanged = "chat_support.status_changed"
	SupportRequestDeleted       = "chat_support.deleted"
)

// Event is the message body written to the events topic.
type Event struct {
	Type       string                 `json:"event"`
	RequestID  string                 `json:"request_id"`
	ActorID    string                 `json:"actor_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const defaultQueueSize = 256

// Producer publishes support request events to Kafka. Publishing is best effort:
// events are queued for a background writer, and failures or a full queue are
// logged and never returned to the caller.
type Producer struct {
	writer  messageWriter
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewProducer builds a producer. Without brokers or topic every method is a no-op.
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return &Producer{logger: logger}
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, logger, 3*time.Second, defaultQueueSize)
}

func newProducer(writer messageWriter, logger *zap.Logger, timeout time.Duration, queueSize int) *Producer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &Producer{
		writer:  writer,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan kafka.Message, queueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Enabled reports whether events are actually shipped anywhere.
func (p *Producer) Enabled() bool {
	return p != nil && p.writer != nil
}

// Publish queues event keyed by its request ID so a request's events stay ordered.
// It never waits on the broker.
func (p *Producer) Publish(_ context.Context, event Event) {
	if !p.Enabled() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal support event", zap.String("event", event.Type), zap.Error(err))
		return
	}
	msg := kafka.Message{Key: []byte(event.RequestID), Value: body, Time: event.OccurredAt}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn("support event queue full, dropping event",
			zap.String("event", event.Type),
			zap.String("request_id", event.RequestID),
		)
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for msg := range p.queue {
		writeCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.writer.WriteMessages(writeCtx, msg)
		cancel()
		if err != nil {
			p.logger.Warn("publish support event",
				zap.String("request_id", string(msg.Key)),
				zap.Error(err),
			)
		}
	}
}

// Close drains queued events and closes the underlying writer.
func (p *Producer) Close() error {
	if !p.Enabled() {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}
