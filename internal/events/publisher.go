package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher carries timer events from the orchestrator to whoever fans them
// out to clients.
type Publisher interface {
	Publish(ctx context.Context, gameID uuid.UUID, eventType EventType, payload interface{}) error
	Close() error
}

// JetStreamConfig holds NATS connection and stream settings for the timer
// event bus.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns the default timer event bus configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "GAME_TIMERS",
		SubjectPrefix: "game.timers",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// JetStreamPublisher publishes timer events to NATS JetStream, one subject
// per game.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamPublisher connects to NATS and ensures the timer event stream
// exists.
func NewJetStreamPublisher(config JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: config}
	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

// ensureStream creates the timer event stream if it does not exist. Timer
// events are ephemeral display traffic, so the stream keeps a short window.
func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Per-game timer synchronization events",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      time.Minute,
		Storage:     jetstream.MemoryStorage,
	})
	return err
}

// Publish wraps the payload in a GameTimerEvent envelope and publishes it on
// the game's subject.
func (p *JetStreamPublisher) Publish(ctx context.Context, gameID uuid.UUID, eventType EventType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	event := GameTimerEvent{
		ID:        uuid.New().String(),
		GameID:    gameID.String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, gameID)
	if _, err := p.js.Publish(ctx, subject, raw); err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, subject, err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// NopPublisher discards every event. Used when the process runs without a
// message bus.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, gameID uuid.UUID, eventType EventType, payload interface{}) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
