package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTConfig struct {
	// Broker is used for URLs that name no host, e.g. mqtt:///alarms/fired.
	Broker   string
	ClientID string
	Username string
	Password string
}

// Publisher delivers one message to a topic on a broker.
type Publisher interface {
	Publish(ctx context.Context, broker, topic string, payload []byte) error
}

// ParseMQTTURL splits mqtt://host:port/topic/path into a broker address and
// a topic. The port defaults to 1883. broker is empty when the URL has no
// host.
func ParseMQTTURL(raw string) (broker, topic string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "mqtt" && u.Scheme != "tcp" {
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	topic = strings.TrimPrefix(u.Path, "/")
	if topic == "" {
		return "", "", fmt.Errorf("mqtt url needs a topic: %s", raw)
	}
	if u.Hostname() == "" {
		return "", topic, nil
	}
	port := u.Port()
	if port == "" {
		port = "1883"
	}
	return "tcp://" + u.Hostname() + ":" + port, topic, nil
}

// MQTTPublisher keeps one paho connection per broker, opened on first use.
type MQTTPublisher struct {
	cfg    MQTTConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]mqtt.Client
}

func NewMQTTPublisher(cfg MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{cfg: cfg, logger: logger, clients: map[string]mqtt.Client{}}
}

func (p *MQTTPublisher) client(broker string, timeout time.Duration) (mqtt.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[broker]; ok {
		return c, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(timeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	p.logger.Info("Connected to MQTT broker", zap.String("broker", broker))
	p.clients[broker] = c
	return c, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, broker, topic string, payload []byte) error {
	if broker == "" {
		broker = p.cfg.Broker
	}
	if broker == "" {
		return fmt.Errorf("no broker for topic %s", topic)
	}
	timeout := DefaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	c, err := p.client(broker, timeout)
	if err != nil {
		return err
	}
	token := c.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Close disconnects every broker connection.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for broker, c := range p.clients {
		c.Disconnect(250)
		delete(p.clients, broker)
	}
}
