package probe

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"spintraffic/internal/config"
	"spintraffic/internal/engine/flowtable"
	"spintraffic/internal/metrics"
	"spintraffic/internal/model"

	"github.com/nats-io/nats.go"
)

// ErrBusDisconnected reports a lost bus connection. It is passed to the
// StatusFunc and never returned for individual messages.
var ErrBusDisconnected = errors.New("bus disconnected")

// StatusFunc is called whenever the bus connection changes state. err is nil
// when the connection is up and wraps ErrBusDisconnected otherwise.
type StatusFunc func(err error)

// MessageHandler processes the payload of one bus message.
type MessageHandler func(data []byte)

// Subscriber is responsible for subscribing to a NATS subject and processing messages.
type Subscriber struct {
	nc        *nats.Conn
	sub       *nats.Subscription
	subject   string
	connected atomic.Bool
}

// NewSubscriber connects to the bus. Reconnects are handled by the NATS
// client; status, if not nil, follows every connection change. m may be nil.
func NewSubscriber(cfg config.BusConfig, m *metrics.Metrics, status StatusFunc) (*Subscriber, error) {
	s := &Subscriber{subject: cfg.Subject}
	nc, err := connect(cfg, cfg.ClientName, func(err error) {
		s.connected.Store(err == nil)
		if m != nil {
			if err == nil {
				m.BusConnected.Set(1)
			} else {
				m.BusConnected.Set(0)
			}
		}
		if status != nil {
			status(err)
		}
	}, func() {
		if m != nil {
			m.BusReconnects.Inc()
		}
	})
	if err != nil {
		return nil, err
	}
	s.nc = nc
	s.connected.Store(true)
	if m != nil {
		m.BusConnected.Set(1)
	}
	if status != nil {
		status(nil)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL())
	return s, nil
}

// Start subscribes to the configured subject and hands every message to handler.
func (s *Subscriber) Start(handler MessageHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", s.subject, err)
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for messages...", s.subject)
	return nil
}

// Connected reports whether the bus connection is currently up.
func (s *Subscriber) Connected() bool {
	return s.connected.Load()
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}

// TrafficHandler decodes traffic messages and ingests their flows into table.
// Malformed messages are logged and dropped without touching the table.
func TrafficHandler(table *flowtable.Table, m *metrics.Metrics) MessageHandler {
	return func(data []byte) {
		records, ok, err := model.DecodeTraffic(data)
		if err != nil {
			m.MessagesReceived.WithLabelValues(metrics.ResultMalformed).Inc()
			log.Printf("Error decoding traffic message: %v", err)
			return
		}
		if !ok {
			m.MessagesReceived.WithLabelValues(metrics.ResultIgnored).Inc()
			return
		}
		m.MessagesReceived.WithLabelValues(metrics.ResultTraffic).Inc()

		merged := table.IngestAll(records)
		m.FlowsIngested.Add(float64(len(records)))
		m.FlowsMerged.Add(float64(merged))
		m.TableFlows.Set(float64(table.Len()))
	}
}

// connect opens a NATS connection that reconnects forever. status receives
// the connection state changes and reconnected is called after each
// reconnect; both may be nil.
func connect(cfg config.BusConfig, name string, status StatusFunc, reconnected func()) (*nats.Conn, error) {
	wait, err := cfg.ReconnectInterval()
	if err != nil {
		return nil, err
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("Disconnected from NATS: %v", err)
			} else {
				log.Println("Disconnected from NATS.")
			}
			if status != nil {
				status(fmt.Errorf("%w: %v", ErrBusDisconnected, err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("Reconnected to NATS server at %s", nc.ConnectedUrl())
			if reconnected != nil {
				reconnected()
			}
			if status != nil {
				status(nil)
			}
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if status != nil {
				status(fmt.Errorf("%w: connection closed", ErrBusDisconnected))
			}
		}),
	}

	nc, err := nats.Connect(cfg.URL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL(), err)
	}
	return nc, nil
}
