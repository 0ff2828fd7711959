// Package notify publishes relay outcomes to NATS so downstream services
// can react without polling the journal.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"gorealisbridge/metrics"
	"gorealisbridge/types"
)

// Outcome is published once per relayed event, on
// <prefix>.<source chain>.<status>.
type Outcome struct {
	SourceChain types.Chain `json:"source_chain"`
	TargetChain types.Chain `json:"target_chain"`
	Hash        string      `json:"hash"`
	Kind        string      `json:"kind"`
	Status      string      `json:"status"`
	TargetTx    string      `json:"target_tx,omitempty"`
	Error       string      `json:"error,omitempty"`
	At          time.Time   `json:"at"`
}

// Notifier is what the relay sender needs.
type Notifier interface {
	Publish(o Outcome)
}

// Publisher is a Notifier backed by a NATS connection. The zero value and
// a nil *Publisher drop every message.
type Publisher struct {
	conn    *nats.Conn
	prefix  string
	logger  zerolog.Logger
	publish func(subject string, data []byte) error
}

// Connect dials url. An empty url yields a no-op publisher.
func Connect(url, prefix string, logger zerolog.Logger) (*Publisher, error) {
	logger = logger.With().Str("component", "notify").Logger()
	if url == "" {
		logger.Info().Msg("NATS url not set, outcome notifications disabled")
		return &Publisher{prefix: prefix, logger: logger}, nil
	}

	conn, err := nats.Connect(url,
		nats.Name("realis-bsc-bridge"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	return &Publisher{conn: conn, prefix: prefix, logger: logger, publish: conn.Publish}, nil
}

func (p *Publisher) Subject(o Outcome) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, o.SourceChain, o.Status)
}

// Publish is fire and forget; a failed publish is logged and dropped.
func (p *Publisher) Publish(o Outcome) {
	if p == nil || p.publish == nil {
		return
	}
	data, err := json.Marshal(o)
	if err != nil {
		p.logger.Error().Err(err).Str("hash", o.Hash).Msg("cannot marshal outcome")
		return
	}
	subject := p.Subject(o)
	if err := p.publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Str("hash", o.Hash).Msg("cannot publish outcome")
	}
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
