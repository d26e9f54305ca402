package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/pio-go/sdk"
)

// Client represents a NATS JetStream client
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config *Config
	log    *logrus.Entry
}

// NewClient creates a new NATS JetStream client and makes sure the event
// stream exists.
func NewClient(config *Config, logger *logrus.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "queue")

	// Set up connection options
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
	}

	// Add authentication if provided
	if config.User != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.User, config.Password))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &Client{
		nc:     nc,
		js:     js,
		config: config,
		log:    log,
	}

	if err := client.initializeStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	return client, nil
}

// initializeStream creates or updates the event stream
func (c *Client) initializeStream() error {
	streamConfig := &nats.StreamConfig{
		Name:        c.config.StreamName,
		Description: "Events awaiting delivery to the event server",
		Subjects:    []string{SubjectEvents},
		Retention:   nats.LimitsPolicy,
		MaxAge:      c.config.StreamMaxAge,
		MaxBytes:    c.config.StreamMaxBytes,
		MaxMsgs:     c.config.StreamMaxMsgs,
		MaxMsgSize:  c.config.StreamMaxMsgSize,
		Replicas:    c.config.StreamReplicas,
		Duplicates:  c.config.DuplicateWindow,
		NoAck:       false,
		Storage:     nats.FileStorage,
	}

	_, err := c.js.AddStream(streamConfig)
	if err != nil {
		// Try to update if stream exists
		_, err = c.js.UpdateStream(streamConfig)
		if err != nil {
			return fmt.Errorf("failed to create/update event stream: %w", err)
		}
	}
	return nil
}

// PublishEvent publishes one event for relay and returns the message id.
// The id doubles as the JetStream message id, so a retried publish inside
// the duplicate window is dropped by the server.
func (c *Client) PublishEvent(ctx context.Context, event *sdk.Event, source string) (string, error) {
	if err := event.Validate(); err != nil {
		return "", fmt.Errorf("refusing to publish: %w", err)
	}
	msg := NewEventMessage(event, source)
	if err := c.Publish(ctx, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Publish publishes a prepared envelope and waits for the stream to
// acknowledge it.
func (c *Client) Publish(ctx context.Context, msg *EventMessage) error {
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event message: %w", err)
	}

	pubAck, err := c.js.PublishAsync(SubjectEvents, data, nats.MsgId(msg.ID))
	if err != nil {
		return fmt.Errorf("failed to publish event message: %w", err)
	}

	select {
	case <-pubAck.Ok():
		return nil
	case err := <-pubAck.Err():
		return fmt.Errorf("event message publish failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateConsumer creates the durable pull consumer used by the relay
func (c *Client) CreateConsumer() (*nats.ConsumerInfo, error) {
	consumerConfig := &nats.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       c.config.ConsumerAckWait,
		MaxDeliver:    c.config.ConsumerMaxDeliver,
		MaxAckPending: c.config.ConsumerMaxAckPending,
		ReplayPolicy:  nats.ReplayInstantPolicy,
		DeliverPolicy: nats.DeliverAllPolicy,
		FilterSubject: SubjectEvents,
	}

	info, err := c.js.AddConsumer(c.config.StreamName, consumerConfig)
	if err != nil {
		// Try to update if consumer exists
		info, err = c.js.UpdateConsumer(c.config.StreamName, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create/update consumer: %w", err)
		}
	}
	return info, nil
}

// Consumer pulls event messages from the durable consumer.
type Consumer struct {
	sub    *nats.Subscription
	config *Config
}

// Consumer binds a pull subscription to the durable consumer, creating it
// first if needed.
func (c *Client) Consumer() (*Consumer, error) {
	if _, err := c.CreateConsumer(); err != nil {
		return nil, err
	}
	sub, err := c.js.PullSubscribe(
		SubjectEvents,
		c.config.ConsumerName,
		nats.ManualAck(),
		nats.Bind(c.config.StreamName, c.config.ConsumerName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return &Consumer{sub: sub, config: c.config}, nil
}

// Fetch pulls up to max messages, waiting at most the configured fetch
// timeout. An empty result with a nil error means nothing was available.
func (c *Consumer) Fetch(ctx context.Context, max int) ([]*Delivery, error) {
	if max <= 0 {
		max = c.config.FetchSize
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	msgs, err := c.sub.Fetch(max, nats.Context(fetchCtx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	deliveries := make([]*Delivery, 0, len(msgs))
	for _, m := range msgs {
		deliveries = append(deliveries, newDelivery(m))
	}
	return deliveries, nil
}

// Close unsubscribes from the consumer. The durable consumer is kept.
func (c *Consumer) Close() error {
	return c.sub.Unsubscribe()
}

// Delivery is one fetched message. Message is nil when the payload could
// not be decoded, and Err then says why.
type Delivery struct {
	Message *EventMessage
	Err     error

	msg *nats.Msg
}

func newDelivery(m *nats.Msg) *Delivery {
	d := &Delivery{msg: m}
	d.Message, d.Err = UnmarshalEventMessage(m.Data)
	return d
}

// Data returns the raw payload.
func (d *Delivery) Data() []byte { return d.msg.Data }

// ID returns the envelope id, or the JetStream message id header when the
// payload did not decode.
func (d *Delivery) ID() string {
	if d.Message != nil {
		return d.Message.ID
	}
	if d.msg.Header != nil {
		return d.msg.Header.Get(nats.MsgIdHdr)
	}
	return ""
}

// NumDelivered reports how many times the message has been delivered,
// including this time.
func (d *Delivery) NumDelivered() int {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

// Ack acknowledges the message
func (d *Delivery) Ack() error { return d.msg.Ack() }

// Nak asks for redelivery after delay.
func (d *Delivery) Nak(delay time.Duration) error {
	if delay > 0 {
		return d.msg.NakWithDelay(delay)
	}
	return d.msg.Nak()
}

// Term stops redelivery of the message
func (d *Delivery) Term() error { return d.msg.Term() }

// Health checks the NATS connection health
func (c *Client) Health() error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}

	// Check JetStream API access
	if _, err := c.js.AccountInfo(); err != nil {
		return fmt.Errorf("JetStream health check failed: %w", err)
	}
	return nil
}

// Pending returns the number of messages not yet delivered to the relay
// consumer.
func (c *Client) Pending() (uint64, error) {
	info, err := c.js.ConsumerInfo(c.config.StreamName, c.config.ConsumerName)
	if err != nil {
		return 0, fmt.Errorf("failed to get consumer info: %w", err)
	}
	return info.NumPending, nil
}

// Close drains and closes the NATS connection
func (c *Client) Close() error {
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil {
			c.nc.Close()
			return err
		}
	}
	return nil
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() *Config {
	return c.config
}
