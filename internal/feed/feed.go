// Package feed publishes advisory top-of-book snapshots: best bid,
// best ask, and their quantities, sent after every mutating operation
// so downstream consumers can track the book without replaying the
// engine's own state. This is advisory only; nothing in the engine
// depends on delivery succeeding.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// TopOfBook is the wire shape published on every book mutation.
type TopOfBook struct {
	BestBidPrice int64 `json:"best_bid_price,omitempty"`
	BestBidQty   int64 `json:"best_bid_qty,omitempty"`
	HasBid       bool  `json:"has_bid"`
	BestAskPrice int64 `json:"best_ask_price,omitempty"`
	BestAskQty   int64 `json:"best_ask_qty,omitempty"`
	HasAsk       bool  `json:"has_ask"`
	Timestamp    int64 `json:"timestamp"`
}

// Publisher writes TopOfBook snapshots to a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher dials brokers and returns a Publisher writing to topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish sends snap, keyed by nothing in particular since the topic
// carries a single symbol's state. Errors are the caller's to log;
// the engine never blocks on this.
func (p *Publisher) Publish(ctx context.Context, snap TopOfBook) error {
	value, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Value: value})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error { return p.writer.Close() }
