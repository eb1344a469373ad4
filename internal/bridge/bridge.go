// Package bridge relays traffic between one websocket session and an MQTT
// broker. Inbound session messages publish to the messages topic, lifecycle
// changes publish to the events topic, and payloads arriving on the send
// topic go back out over the session.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wsess"
)

const (
	closeGrace    = 3 * time.Second
	shutdownGrace = 5 * time.Second
)

// Config configures the bridge standalone runtime.
type Config struct {
	ID           string
	Address      string
	Subprotocols []string

	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// Bridge defaults for standalone runtime configuration.
func DefaultConfig() Config {
	return Config{
		ID:          "bridge.local",
		Broker:      "tcp://127.0.0.1:1883",
		TopicPrefix: "wsess",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ID) == "" {
		c.ID = def.ID
	}
	if strings.TrimSpace(c.Broker) == "" {
		c.Broker = def.Broker
	}
	if strings.TrimSpace(c.TopicPrefix) == "" {
		c.TopicPrefix = def.TopicPrefix
	}
	if strings.TrimSpace(c.ClientID) == "" {
		c.ClientID = c.ID + "-" + uuid.NewString()[:8]
	}
	return c
}

func (c Config) messagesTopic() string { return c.TopicPrefix + "/messages" }
func (c Config) eventsTopic() string   { return c.TopicPrefix + "/events" }
func (c Config) sendTopic() string     { return c.TopicPrefix + "/send" }

// Service runs the bridge lifecycle as a standalone process. It owns one
// session client and one broker connection and stops when either side goes
// away.
type Service struct {
	cfg     Config
	factory wsess.TransportFactory
	broker  Broker

	client  *wsess.Client
	session *wsess.Session

	closed chan int
}

// Bridge service constructor using explicit config.
func NewServiceWithConfig(cfg Config, factory wsess.TransportFactory) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		factory: factory,
		broker:  newPahoBroker(cfg),
		closed:  make(chan int, 1),
	}
}

// Events published to the events topic alongside relayed traffic.
const (
	eventConnected = "connected"
	eventClosed    = "closed"
)

type sessionEvent struct {
	Event   string `json:"event"`
	Session uint64 `json:"session"`
	Code    int    `json:"code,omitempty"`
}

// Run connects both legs and relays until ctx is cancelled or the session
// closes. The broker leg reconnects on its own; a lost session ends the run.
func (s *Service) Run(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.Address) == "" {
		return fmt.Errorf("bridge %s: websocket address required", s.cfg.ID)
	}

	client, err := wsess.New(wsess.Config{NewTransport: s.factory})
	if err != nil {
		return fmt.Errorf("bridge %s: %w", s.cfg.ID, err)
	}
	s.client = client
	defer s.shutdownClient()

	if err := client.Subscribe(s); err != nil {
		return err
	}
	s.session = client.NewSession()

	if err := s.broker.Connect(); err != nil {
		return err
	}
	defer s.broker.Disconnect()

	if err := s.broker.Subscribe(s.cfg.sendTopic(), s.forwardOutbound); err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("X-Bridge-Id", s.cfg.ID)
	op, err := s.session.Connect(ctx, s.cfg.Address, strings.Join(s.cfg.Subprotocols, ","), headers)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.Address, err)
	}
	res, err := op.Wait(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.Address, err)
	}
	if res.Failed() {
		return fmt.Errorf("connect %s: close code %d", s.cfg.Address, res.Code)
	}

	log.Info().
		Str("bridge", s.cfg.ID).
		Str("address", s.cfg.Address).
		Str("topic_prefix", s.cfg.TopicPrefix).
		Uint64("session", s.session.ID()).
		Msg("bridge online")
	s.publishEvent(eventConnected, 0)

	select {
	case <-ctx.Done():
		log.Info().Str("bridge", s.cfg.ID).Msg("shutting down")
		s.closeSession()
		return nil
	case code := <-s.closed:
		log.Info().Int("code", code).Msg("session closed, bridge stopping")
		return nil
	}
}

// MessageReceived relays one inbound session payload to the messages topic.
func (s *Service) MessageReceived(_ *wsess.Session, payload []byte) {
	if err := s.broker.Publish(s.cfg.messagesTopic(), payload); err != nil {
		log.Warn().Err(err).Msg("relay inbound message")
	}
}

// SessionClosed publishes the close event and releases Run.
func (s *Service) SessionClosed(_ *wsess.Session, code int) {
	s.publishEvent(eventClosed, code)
	select {
	case s.closed <- code:
	default:
	}
}

// forwardOutbound sends one broker payload out over the session. Delivery
// is asynchronous; failures surface in the log, not back to the publisher.
func (s *Service) forwardOutbound(topic string, payload []byte) {
	op, err := s.session.Send(string(payload))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("forward broker payload")
		return
	}
	go func() {
		res, err := op.Wait(context.Background())
		if err == nil && res.Failed() {
			log.Warn().Int("code", res.Code).Msg("forwarded send failed")
		}
	}()
}

func (s *Service) publishEvent(event string, code int) {
	payload, err := json.Marshal(sessionEvent{Event: event, Session: s.session.ID(), Code: code})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode session event")
		return
	}
	if err := s.broker.Publish(s.cfg.eventsTopic(), payload); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("relay session event")
	}
}

// closeSession drives a graceful local close and waits briefly for the
// transport's close confirmation.
func (s *Service) closeSession() {
	err := s.session.Disconnect(wsess.CloseNormal)
	switch {
	case err == nil:
	case errors.Is(err, wsess.ErrNoTransport), errors.Is(err, wsess.ErrInvalidState):
		return
	default:
		log.Warn().Err(err).Msg("disconnect")
		return
	}

	select {
	case <-s.closed:
	case <-time.After(closeGrace):
		log.Warn().Msg("close confirmation timed out")
	}
}

func (s *Service) shutdownClient() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.client.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("client shutdown")
	}
}
