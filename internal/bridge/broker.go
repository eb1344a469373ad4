package bridge

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	brokerKeepAlive      = 30 * time.Second
	brokerConnectTimeout = 10 * time.Second
	brokerReconnectMax   = 30 * time.Second
	brokerDisconnectMS   = 250
)

// Broker is the narrow MQTT surface the bridge relies on. The production
// implementation wraps a paho client; package tests substitute an in-memory
// fake.
type Broker interface {
	Connect() error
	Disconnect()
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// pahoBroker adapts the paho MQTT client to the Broker surface. It keeps a
// registry of live subscriptions so they survive the client's automatic
// reconnects.
type pahoBroker struct {
	cfg    Config
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]func(topic string, payload []byte)
}

func newPahoBroker(cfg Config) *pahoBroker {
	return &pahoBroker{
		cfg:  cfg,
		subs: make(map[string]func(string, []byte)),
	}
}

func (b *pahoBroker) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
	}
	if b.cfg.Password != "" {
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetKeepAlive(brokerKeepAlive)
	opts.SetConnectTimeout(brokerConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(brokerReconnectMax)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", b.cfg.Broker).Msg("broker connection lost")
	})
	opts.SetOnConnectHandler(b.onConnect)

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect broker %s: %w", b.cfg.Broker, token.Error())
	}
	return nil
}

func (b *pahoBroker) Disconnect() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(brokerDisconnectMS)
	}
}

func (b *pahoBroker) Publish(topic string, payload []byte) error {
	if b.client == nil || !b.client.IsConnected() {
		return fmt.Errorf("publish %s: broker not connected", topic)
	}
	token := b.client.Publish(topic, b.cfg.QoS, b.cfg.Retain, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

func (b *pahoBroker) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	if b.client == nil || !b.client.IsConnected() {
		return fmt.Errorf("subscribe %s: broker not connected", topic)
	}

	b.mu.Lock()
	b.subs[topic] = handler
	b.mu.Unlock()

	if err := b.subscribe(b.client, topic, handler); err != nil {
		b.mu.Lock()
		delete(b.subs, topic)
		b.mu.Unlock()
		return err
	}
	return nil
}

// onConnect restores subscriptions after the paho client reconnects. Clean
// sessions lose server-side state on every new connection.
func (b *pahoBroker) onConnect(client mqtt.Client) {
	log.Info().Str("broker", b.cfg.Broker).Msg("broker connected")

	b.mu.Lock()
	subs := make(map[string]func(string, []byte), len(b.subs))
	for topic, handler := range b.subs {
		subs[topic] = handler
	}
	b.mu.Unlock()

	for topic, handler := range subs {
		if err := b.subscribe(client, topic, handler); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("resubscribe failed")
		}
	}
}

func (b *pahoBroker) subscribe(client mqtt.Client, topic string, handler func(string, []byte)) error {
	token := client.Subscribe(topic, b.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}
