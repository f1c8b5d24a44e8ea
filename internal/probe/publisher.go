package probe

import (
	"encoding/json"
	"fmt"
	"log"

	"spintraffic/internal/config"
	"spintraffic/internal/model"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing traffic messages to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.BusConfig) (*Publisher, error) {
	nc, err := connect(cfg, cfg.ClientName+"-probe", nil, nil)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL())
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish serializes a traffic message to JSON and publishes it to the configured subject.
func (p *Publisher) Publish(msg *model.TrafficMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal traffic message: %w", err)
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
