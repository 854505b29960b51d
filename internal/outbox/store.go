// Package outbox gives trade events at-least-once delivery to
// downstream consumers via a durable transactional-outbox pattern:
// each trade is written to a pebble-backed store in the same moment
// the engine commits it, and a background broadcaster drains NEW
// entries to Kafka independently of the matching hot path.
package outbox

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"limitbook/internal/core"
)

// State is the delivery state of one outbox entry.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// Entry is one durable outbox record.
type Entry struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte // JSON-encoded TradeEvent
}

// TradeEvent is the wire shape published to the trade topic.
type TradeEvent struct {
	V         int    `json:"v"`
	TradeID   uint64 `json:"trade_id"`
	BidID     uint64 `json:"bid_id"`
	AskID     uint64 `json:"ask_id"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}

func eventFromTrade(t core.Trade) TradeEvent {
	return TradeEvent{
		V:         1,
		TradeID:   t.TradeID,
		BidID:     t.BidID,
		AskID:     t.AskID,
		Price:     t.Price,
		Quantity:  t.Quantity,
		Timestamp: t.Timestamp,
	}
}

// Store is the pebble-backed durable outbox.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if necessary) the outbox at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{DisableWAL: false})
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// PutNew durably records a freshly committed trade in state NEW.
func (s *Store) PutNew(t core.Trade) error {
	payload, err := json.Marshal(eventFromTrade(t))
	if err != nil {
		return fmt.Errorf("outbox: marshal trade %d: %w", t.TradeID, err)
	}
	rec := Entry{State: StateNew, Payload: payload}
	return s.db.Set(keyFor(t.TradeID), encodeEntry(rec), pebble.Sync)
}

// UpdateState transitions the entry for tradeID, recording the retry
// count and the time of this attempt.
func (s *Store) UpdateState(tradeID uint64, state State, retries uint32) error {
	cur, err := s.Get(tradeID)
	if err != nil {
		return err
	}
	cur.State = state
	cur.Retries = retries
	cur.LastAttempt = time.Now().UnixNano()
	return s.db.Set(keyFor(tradeID), encodeEntry(cur), pebble.Sync)
}

// Delete removes an ACKED entry during cleanup.
func (s *Store) Delete(tradeID uint64) error {
	return s.db.Delete(keyFor(tradeID), pebble.Sync)
}

// Get returns the current entry for tradeID.
func (s *Store) Get(tradeID uint64) (Entry, error) {
	val, closer, err := s.db.Get(keyFor(tradeID))
	if err != nil {
		return Entry{}, fmt.Errorf("outbox: get %d: %w", tradeID, err)
	}
	defer closer.Close()
	return decodeEntry(val)
}

// ScanByState iterates every entry in the given state, in key
// (tradeID) order, invoking fn for each.
func (s *Store) ScanByState(state State, fn func(tradeID uint64, e Entry) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return fmt.Errorf("outbox: scan: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if e.State != state {
			continue
		}
		id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(id, e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// binary layout: [state:1][retries:4][lastAttempt:8][payload...]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 1+4+8+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[13:], e.Payload)
	return buf
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < 13 {
		return Entry{}, fmt.Errorf("outbox: truncated entry (%d bytes)", len(b))
	}
	payload := make([]byte, len(b)-13)
	copy(payload, b[13:])
	return Entry{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

func keyFor(tradeID uint64) []byte {
	return []byte(fmt.Sprintf("trade/%020d", tradeID))
}

func parseKey(b []byte) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("trade/"))), "%d", &id)
	return id, err
}
