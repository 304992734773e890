package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"smart-stick/tracker/internal/log"
)

// MessageHandler processes one received message.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the slice of an MQTT connection the device transport needs.
type Client interface {
	Start(ctx context.Context) error
	AwaitConnection(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	Disconnect(ctx context.Context)
}

type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive      uint16
	ConnectTimeout time.Duration
}

type pahoClient struct {
	cfg ClientConfig
	cm  *autopaho.ConnectionManager
	ctx context.Context

	// topic filter -> subscription
	subscriptions sync.Map
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

func NewClient(cfg ClientConfig) (Client, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}
	if _, err := url.Parse(cfg.BrokerURL); err != nil {
		return nil, fmt.Errorf("invalid mqtt broker url: %w", err)
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &pahoClient{cfg: cfg}, nil
}

// Start is non-blocking; use AwaitConnection to wait for the broker.
func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL)
	c.ctx = ctx

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         3600,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.router,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	log.Info("Starting MQTT Client", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errors.New("client not started")
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	if c.cm == nil {
		return errors.New("client not started")
	}

	// Stored first so onConnectionUp re-subscribes after a reconnect.
	c.subscriptions.Store(topic, subscription{topic: topic, qos: qos, handler: handler})

	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: qos}},
	}); err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}

	log.Info("Subscribed to topic", "topic", topic)
	return nil
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if c.cm == nil {
		return errors.New("client not started")
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: payload,
	})
	return err
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm != nil {
		_ = c.cm.Disconnect(ctx)
		log.Info("MQTT Client disconnected")
	}
}

func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	log.Info("MQTT Connection established")

	c.subscriptions.Range(func(_, value any) bool {
		sub := value.(subscription)
		if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: sub.topic, QoS: sub.qos}},
		}); err != nil {
			log.Error(err, "Failed to re-subscribe", "topic", sub.topic)
		}
		return true
	})
}

func (c *pahoClient) onConnectError(err error) {
	log.Error(err, "MQTT Connection failed, retrying...")
}

func (c *pahoClient) onClientError(err error) {
	log.Error(err, "MQTT Client internal error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	log.Warn("MQTT Server requested disconnect", "reason", reason)
}

// router hands each message to every matching subscription on its own
// goroutine so the paho reader loop never blocks on ingest.
func (c *pahoClient) router(p paho.PublishReceived) (bool, error) {
	matched := false
	c.subscriptions.Range(func(_, value any) bool {
		sub := value.(subscription)
		if topicsMatch(sub.topic, p.Packet.Topic) {
			go sub.handler(c.ctx, p.Packet.Topic, p.Packet.Payload)
			matched = true
		}
		return true
	})

	if !matched {
		log.Debug("Received message on unhandled topic", "topic", p.Packet.Topic)
	}
	return true, nil
}

// topicsMatch supports the + and # wildcards.
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}
