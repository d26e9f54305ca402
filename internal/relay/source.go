package relay

import (
	"context"
	"time"

	"github.com/birbparty/pio-go/internal/queue"
	"github.com/birbparty/pio-go/sdk"
)

// Delivery is one queued message handed to the relay
type Delivery interface {
	ID() string
	Data() []byte
	// Event is nil when the payload could not be decoded
	Event() *sdk.Event
	DecodeErr() error
	NumDelivered() int
	Ack() error
	Nak(delay time.Duration) error
	Term() error
}

// Source yields batches of deliveries. An empty batch with a nil error means
// nothing was available before the source's own wait expired.
type Source interface {
	Fetch(ctx context.Context, max int) ([]Delivery, error)
}

// QueueSource adapts a JetStream consumer to Source
type QueueSource struct {
	consumer *queue.Consumer
}

// NewQueueSource wraps consumer
func NewQueueSource(consumer *queue.Consumer) *QueueSource {
	return &QueueSource{consumer: consumer}
}

// Fetch implements Source
func (s *QueueSource) Fetch(ctx context.Context, max int) ([]Delivery, error) {
	msgs, err := s.consumer.Fetch(ctx, max)
	if err != nil {
		return nil, err
	}
	out := make([]Delivery, len(msgs))
	for i, m := range msgs {
		out[i] = queueDelivery{m}
	}
	return out, nil
}

type queueDelivery struct {
	*queue.Delivery
}

func (d queueDelivery) Event() *sdk.Event {
	if d.Message == nil {
		return nil
	}
	return d.Message.Event
}

func (d queueDelivery) DecodeErr() error {
	return d.Err
}
