// Package messaging provides a NATS client wrapper for the moderation
// service. It handles connection lifecycle, queue-group subscriptions for
// inbound updates, request/reply calls to the classifier and the chat bridge,
// and publication of penalty events.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used by the moderation service.
const (
	SubjectInbound           = "moderation.inbound"   // bridge -> moderator updates
	SubjectPenalty           = "moderation.penalty"   // + .<chat_id>
	SubjectClassifySpam      = "classifier.spam"      // request/reply
	SubjectClassifyProfanity = "classifier.profanity" // request/reply
	SubjectTransport         = "transport"            // + .<action>, request/reply
	QueueModerators          = "moderators"           // queue group for SubjectInbound
)

// ErrNoResponders is returned by Request when nobody listens on the subject.
var ErrNoResponders = errors.New("nats: no responders")

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "moderator",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Request sends data to subject and waits for a single reply, bounded by ctx.
func (c *NATSClient) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if errors.Is(err, nats.ErrNoResponders) {
		return nil, fmt.Errorf("%w on %s", ErrNoResponders, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// QueueSubscribe registers a handler in a queue group, so each message is
// delivered to exactly one member of the group.
func (c *NATSClient) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("nats queue subscribe %s/%s: %w", subject, queue, err)
	}

	c.mu.Lock()
	c.subs[subject+"#"+queue] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeInbound subscribes to inbound chat updates in the moderators
// queue group and passes the raw payload to the handler.
func (c *NATSClient) SubscribeInbound(handler func(data []byte)) error {
	return c.QueueSubscribe(SubjectInbound, QueueModerators, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeInbound stops delivery of inbound updates to this client.
func (c *NATSClient) UnsubscribeInbound() error {
	return c.unsubscribe(SubjectInbound + "#" + QueueModerators)
}

// PublishPenalty publishes a penalty event to moderation.penalty.<chatID>.
func (c *NATSClient) PublishPenalty(chatID int64, data []byte) error {
	return c.Publish(SubjectPenalty+"."+strconv.FormatInt(chatID, 10), data)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subscription key.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for %s", key)
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}
