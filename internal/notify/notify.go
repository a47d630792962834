package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	KindSaleCreated     = "sale.created"
	KindRefundCreated   = "refund.created"
	KindProductCreated  = "product.created"
	KindProductUpdated  = "product.updated"
	KindProductDeleted  = "product.deleted"
	KindStockAdjusted   = "stock.adjusted"
	KindImportCompleted = "import.completed"
	KindTenantDeleted   = "tenant.deleted"
)

type Event struct {
	Kind     string    `json:"kind"`
	TenantID string    `json:"tenant_id"`
	EntityID string    `json:"entity_id,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher never blocks the caller and never fails a committed write.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type Noop struct{}

func (Noop) Publish(_ context.Context, _ Event) {}

// Sink delivers an encoded event to one channel.
type Sink interface {
	Send(ctx context.Context, channel string, payload []byte) error
}

type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Send(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Dispatcher fans events out to <prefix>:<tenant> and <prefix>:all from a
// background goroutine. Events are dropped when the buffer is full.
type Dispatcher struct {
	sink    Sink
	prefix  string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}
}

func NewDispatcher(sink Sink, prefix string, buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		sink:    sink,
		prefix:  prefix,
		timeout: 2 * time.Second,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Publish(_ context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.events <- event:
	default:
		log.Printf("[notify] WARN: buffer full, dropping %s for tenant %s", event.Kind, event.TenantID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[notify] WARN: encode %s: %v", event.Kind, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for _, channel := range []string{fmt.Sprintf("%s:%s", d.prefix, event.TenantID), d.prefix + ":all"} {
		if err := d.sink.Send(ctx, channel, payload); err != nil {
			log.Printf("[notify] WARN: publish %s to %s: %v", event.Kind, channel, err)
		}
	}
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	<-d.done
	return nil
}
