// Package messaging provides a NATS client wrapper connecting the moderation
// engine to platform bridges. Bridges publish inbound message events; the
// bot publishes channel posts (summaries, command replies, moderator alerts)
// for bridges to deliver.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sentinel/mod-bot/internal/conversation"
)

// NATS subject patterns used between the bot and platform bridges.
const (
	SubjectInboundMessage = "mod.message"      // inbound chat messages
	SubjectChannelPost    = "mod.channel.post" // + .<channel_id>
)

// InboundMessage is a chat message event published by a platform bridge.
type InboundMessage struct {
	ChannelID  string `json:"channel_id"`
	MessageID  string `json:"message_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	Ts         int64  `json:"ts"`
}

// Message converts the event to the engine's message form.
func (m InboundMessage) Message() conversation.Message {
	return conversation.Message{
		MessageID:  m.MessageID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Text:       m.Text,
		Ts:         m.Ts,
	}
}

// ChannelPost is a message the bot wants delivered to a channel.
type ChannelPost struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

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
		Name:          "modbot",
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

// SubscribeInboundMessages subscribes to inbound chat message events and
// passes each decoded event to the handler. Malformed events are logged and
// dropped.
func (c *NATSClient) SubscribeInboundMessages(handler func(msg InboundMessage)) error {
	return c.Subscribe(SubjectInboundMessage, func(m *nats.Msg) {
		var event InboundMessage
		if err := json.Unmarshal(m.Data, &event); err != nil {
			log.Printf("[nats] malformed inbound message: %v", err)
			return
		}
		handler(event)
	})
}

// PostChannel publishes a channel post for the platform bridge to deliver.
// It satisfies the engine's Notifier contract; the context is accepted for
// interface symmetry but NATS publishes are fire-and-forget.
func (c *NATSClient) PostChannel(_ context.Context, channelID, text string) error {
	data, err := json.Marshal(ChannelPost{ChannelID: channelID, Text: text})
	if err != nil {
		return fmt.Errorf("nats: marshal channel post: %w", err)
	}
	return c.Publish(SubjectChannelPost+"."+channelID, data)
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
