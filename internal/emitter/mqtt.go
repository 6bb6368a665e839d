// Package emitter republishes relay events to an MQTT broker for home-automation consumers.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/AltairaLabs/gesture-relay/internal/config"
)

const (
	defaultQueueSize  = 256
	connectTimeout    = 5 * time.Second
	publishTimeout    = 2 * time.Second
	disconnectQuiesce = 250
)

// publisher is the subset of mqtt.Client the emitter uses
type publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type message struct {
	topic   string
	payload []byte
}

// MQTTEmitter publishes events asynchronously. Publish never blocks the caller;
// messages are dropped when the queue is full or the broker is unreachable.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	client publisher
	queue  chan message
	logger *slog.Logger

	mu        sync.RWMutex
	published map[string]uint64
	dropped   uint64
	errors    uint64
}

// NewMQTTEmitter creates an emitter. Connect must be called before Run.
func NewMQTTEmitter(cfg config.MQTTConfig, logger *slog.Logger) *MQTTEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTEmitter{
		cfg:       cfg,
		queue:     make(chan message, defaultQueueSize),
		logger:    logger.With("broker", cfg.Broker),
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection with automatic reconnect
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		e.logger.Info("MQTT connection established", "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.logger.Warn("MQTT connection lost, will auto-reconnect", "error", err)
	}

	client := mqtt.NewClient(opts)
	e.client = client

	e.logger.Info("Connecting to MQTT broker")
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		// connect retry keeps going in the background
		e.logger.Warn("MQTT broker not reachable yet, continuing in background")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Publish queues payload for <prefix>/<kind>
func (e *MQTTEmitter) Publish(kind string, payload []byte) {
	msg := message{topic: e.topic(kind), payload: payload}
	select {
	case e.queue <- msg:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

func (e *MQTTEmitter) topic(kind string) string {
	if e.cfg.TopicPrefix == "" {
		return kind
	}
	return e.cfg.TopicPrefix + "/" + kind
}

// Run drains the queue until ctx is cancelled
func (e *MQTTEmitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.queue:
			if err := e.send(msg); err != nil {
				e.logger.Debug("MQTT publish failed", "topic", msg.topic, "error", err)
			}
		}
	}
}

func (e *MQTTEmitter) send(msg message) error {
	if e.client == nil || !e.client.IsConnected() {
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		return fmt.Errorf("mqtt not connected")
	}

	token := e.client.Publish(msg.topic, 0, false, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[msg.topic]++
	e.mu.Unlock()
	return nil
}

// Disconnect closes the broker connection
func (e *MQTTEmitter) Disconnect() {
	if c, ok := e.client.(mqtt.Client); ok && c.IsConnected() {
		c.Disconnect(disconnectQuiesce)
		e.logger.Info("MQTT disconnected")
	}
}

// Stats contains emitter statistics
type Stats struct {
	Published map[string]uint64
	Dropped   uint64
	Errors    uint64
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Published: published, Dropped: e.dropped, Errors: e.errors}
}
