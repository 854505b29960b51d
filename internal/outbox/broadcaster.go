package outbox

import (
	"context"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// Broadcaster drains NEW entries from a Store to a Kafka topic on a
// fixed tick, independent of the matching hot path: a slow or
// unreachable broker never blocks order placement, only delays
// delivery. Entries are marked SENT before the publish attempt and
// ACKED once sarama confirms it, so a crash between the two leaves an
// entry that will simply be retried; delivery is at-least-once, not
// exactly-once.
type Broadcaster struct {
	store    *Store
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
}

// NewBroadcaster dials brokers and returns a Broadcaster publishing to topic.
func NewBroadcaster(store *Store, brokers []string, topic string) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Broadcaster{store: store, producer: producer, topic: topic, interval: 250 * time.Millisecond}, nil
}

// Start runs the replay loop in a background goroutine until ctx is
// cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.replayOnce()
			}
		}
	}()
}

func (b *Broadcaster) replayOnce() {
	err := b.store.ScanByState(StateNew, func(tradeID uint64, e Entry) error {
		if uerr := b.store.UpdateState(tradeID, StateSent, e.Retries); uerr != nil {
			return uerr
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Value: sarama.ByteEncoder(e.Payload),
		}
		if _, _, serr := b.producer.SendMessage(msg); serr != nil {
			// Leave it SENT; the next tick finds it still outside
			// StateNew and this loop alone won't retry it. Retry is
			// driven by ScanByState(StateSent) below.
			return nil
		}
		return b.store.UpdateState(tradeID, StateAcked, e.Retries)
	})
	if err != nil {
		log.Printf("outbox: replay NEW: %v", err)
	}

	err = b.store.ScanByState(StateSent, func(tradeID uint64, e Entry) error {
		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Value: sarama.ByteEncoder(e.Payload),
		}
		if _, _, serr := b.producer.SendMessage(msg); serr != nil {
			return b.store.UpdateState(tradeID, StateSent, e.Retries+1)
		}
		return b.store.UpdateState(tradeID, StateAcked, e.Retries)
	})
	if err != nil {
		log.Printf("outbox: replay SENT: %v", err)
	}
}

// Close closes the underlying Kafka producer.
func (b *Broadcaster) Close() error { return b.producer.Close() }
