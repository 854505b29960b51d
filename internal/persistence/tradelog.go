package persistence

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const tradeLogHeader = "TradeID,BuyOrderID,SellOrderID,Price,Quantity,Timestamp"

// TradeRow is one row of the append-only trade log.
type TradeRow struct {
	TradeID   uint64
	BuyID     uint64
	SellID    uint64
	Price     int64
	Quantity  int64
	Timestamp int64
}

// TradeLog is an append-only CSV sink, flushed to disk on every
// append before the call returns. The header is written once, when
// the file is empty; later runs append without rewriting it.
type TradeLog struct {
	f *os.File
}

// OpenTradeLog opens (creating if necessary) the trade log at path.
func OpenTradeLog(path string) (*TradeLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open trade log %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: stat trade log %s: %w", path, err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(tradeLogHeader + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: write trade log header %s: %w", path, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: sync trade log header %s: %w", path, err)
		}
	}
	return &TradeLog{f: f}, nil
}

// Append writes one trade record and flushes it to disk before returning.
func (t *TradeLog) Append(r TradeRow) error {
	line := strings.Join([]string{
		strconv.FormatUint(r.TradeID, 10),
		strconv.FormatUint(r.BuyID, 10),
		strconv.FormatUint(r.SellID, 10),
		strconv.FormatInt(r.Price, 10),
		strconv.FormatInt(r.Quantity, 10),
		strconv.FormatInt(r.Timestamp, 10),
	}, ",") + "\n"
	if _, err := t.f.WriteString(line); err != nil {
		return fmt.Errorf("persistence: append trade: %w", err)
	}
	return t.f.Sync()
}

// Close closes the underlying file.
func (t *TradeLog) Close() error { return t.f.Close() }

// LastTradeID scans the trade log at path and returns the highest
// TradeID seen, or 0 if the file is missing/empty/headers-only. Used
// to seed next_trade_id for cross-run monotonicity.
func LastTradeID(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("persistence: open trade log %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	var last uint64
	first := true
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		if first {
			first = false
			continue
		}
		if len(rec) == 0 {
			continue
		}
		id, perr := strconv.ParseUint(rec[0], 10, 64)
		if perr != nil {
			continue
		}
		if id > last {
			last = id
		}
	}
	return last, nil
}
