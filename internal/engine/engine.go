// Package engine is the coordinator: the single public surface over
// the book, matcher, and persistence layers, responsible for id
// assignment, ordering the write-ahead log append ahead of the match,
// driving CSV/trade-log persistence, and fanning trades and top-of-book
// changes out to the optional outbox/feed collaborators.
package engine

import (
	"context"
	"fmt"
	"time"

	"limitbook/internal/book"
	"limitbook/internal/config"
	"limitbook/internal/core"
	"limitbook/internal/feed"
	"limitbook/internal/logx"
	"limitbook/internal/matcher"
	"limitbook/internal/outbox"
	"limitbook/internal/persistence"
	"limitbook/internal/walog"
)

// TopLevel is a read-only view of one side's best price level.
type TopLevel struct {
	Price     int64
	Remaining int64
}

// Engine is the coordinator: the single public surface over the book,
// matcher, and persistence layers. It owns every output stream for
// its lifetime and is not safe for concurrent use by multiple
// goroutines without external serialization.
type Engine struct {
	book  *book.Book
	index *book.Index

	nextOrderID uint64
	nextTradeID uint64
	walSeq      uint64

	cfg      config.Config
	logger   *logx.Logger
	tradeLog *persistence.TradeLog
	wal      *walog.WAL

	outboxStore *outbox.Store
	broadcaster *outbox.Broadcaster
	feedPub     *feed.Publisher
	feedCtx     context.Context
	feedCancel  context.CancelFunc

	now matcher.Clock
}

// New constructs an Engine from cfg: it opens every required output
// stream, replays the active-order CSVs into an in-memory Book and
// OrderIndex, and wires the optional outbox/feed collaborators if
// Kafka brokers are configured. A failure to open any required
// resource aborts construction with InitFailure.
func New(cfg config.Config) (*Engine, error) {
	logger, err := logx.Open(cfg.EventLogFile, cfg.EchoToStderr)
	if err != nil {
		return nil, newError(InitFailure, err)
	}
	logger.Log(logx.System, "engine initializing")

	tradeLog, err := persistence.OpenTradeLog(cfg.TradeLogFile)
	if err != nil {
		logger.Logf(logx.Error, "open trade log: %v", err)
		logger.Close()
		return nil, newError(InitFailure, err)
	}

	lastTradeID, err := persistence.LastTradeID(cfg.TradeLogFile)
	if err != nil {
		logger.Logf(logx.Error, "scan trade log for last id: %v", err)
		tradeLog.Close()
		logger.Close()
		return nil, newError(InitFailure, err)
	}

	wal, err := walog.Open(walog.Config{Dir: cfg.WALDir, SegmentSize: cfg.WALSegmentSize})
	if err != nil {
		logger.Logf(logx.Error, "open WAL: %v", err)
		tradeLog.Close()
		logger.Close()
		return nil, newError(InitFailure, err)
	}

	e := &Engine{
		book:        book.New(),
		index:       book.NewIndex(),
		nextOrderID: 1,
		nextTradeID: lastTradeID + 1,
		cfg:         cfg,
		logger:      logger,
		tradeLog:    tradeLog,
		wal:         wal,
		now:         func() int64 { return time.Now().Unix() },
	}

	if cfg.OutboxEnabled {
		store, err := outbox.Open(cfg.OutboxDir)
		if err != nil {
			logger.Logf(logx.Error, "open outbox: %v", err)
			e.Close()
			return nil, newError(InitFailure, err)
		}
		e.outboxStore = store

		bc, err := outbox.NewBroadcaster(store, cfg.KafkaBrokers, cfg.TradesTopic)
		if err != nil {
			logger.Logf(logx.Error, "start broadcaster: %v", err)
			e.Close()
			return nil, newError(InitFailure, err)
		}
		e.broadcaster = bc
		e.feedCtx, e.feedCancel = context.WithCancel(context.Background())
		e.broadcaster.Start(e.feedCtx)
	}
	if cfg.FeedEnabled {
		e.feedPub = feed.NewPublisher(cfg.KafkaBrokers, cfg.BookTopTopic)
	}

	if err := e.replay(); err != nil {
		logger.Logf(logx.Error, "replay: %v", err)
		e.Close()
		return nil, newError(InitFailure, err)
	}

	logger.Log(logx.System, "engine ready")
	return e, nil
}

// replay loads both active-order CSVs, then reads the WAL only to find
// its highest sequence number. The CSVs carry no WAL sequence, so the
// only check made is a warning when the WAL holds records while both
// CSVs load empty; no WAL record is re-applied.
func (e *Engine) replay() error {
	if err := e.replaySide(core.Bid, e.cfg.BidsFile); err != nil {
		return err
	}
	if err := e.replaySide(core.Ask, e.cfg.AsksFile); err != nil {
		return err
	}

	walSeq, err := walog.Replay(e.cfg.WALDir, func(*walog.Record) error { return nil })
	if err != nil {
		return err
	}
	e.walSeq = walSeq
	if walSeq > 0 && e.index.Len() == 0 {
		// The WAL recorded commands but the CSV snapshot came back
		// empty. That is also the state after every order was filled
		// or cancelled, since the WAL is never truncated, so this is
		// only a warning. The CSVs remain authoritative; nothing is
		// repaired.
		e.logger.Logf(logx.Error, "WAL has %d recorded command(s) but active-order CSVs are empty; snapshot may be stale", walSeq)
	}

	e.logger.Log(logx.System, "replay complete")
	return nil
}

func (e *Engine) replaySide(side core.Side, path string) error {
	rows, bad, err := persistence.ReadActiveOrders(path)
	if err != nil {
		return err
	}
	for _, b := range bad {
		e.logger.Logf(logx.Error, "corrupt row at %s:%d: %v", path, b.Line, b.Err)
	}
	for _, r := range rows {
		o := &book.Order{
			ID:        r.OrderID,
			Side:      side,
			Price:     r.Price,
			Quantity:  r.Quantity,
			Filled:    r.Filled,
			Timestamp: r.Timestamp,
		}
		e.book.PushResting(o)
		e.index.Insert(o)
		if o.ID >= e.nextOrderID {
			e.nextOrderID = o.ID + 1
		}
	}
	return nil
}

// Place submits a new order, matching it against the book immediately
// and resting whatever quantity remains.
func (e *Engine) Place(side core.Side, price, quantity int64) ([]core.Trade, error) {
	if price <= 0 || quantity <= 0 {
		err := newError(InvalidArgument, fmt.Errorf("price and quantity must be positive, got price=%d quantity=%d", price, quantity))
		e.logger.Logf(logx.Error, "place rejected: %v", err)
		return nil, err
	}

	id := e.nextOrderID
	e.nextOrderID++
	ts := e.now()

	e.logger.Logf(logx.Order, "submit id=%d side=%s price=%d quantity=%d", id, side, price, quantity)
	e.appendWAL(walog.RecordPlace, []byte(fmt.Sprintf("%d|%d|%d|%d|%d", id, side, price, quantity, ts)))

	incoming := &book.Order{ID: id, Side: side, Price: price, Quantity: quantity, Timestamp: ts}
	trades := matcher.Match(incoming, e.book, e.mintTradeID, e.now)

	for _, t := range trades {
		if err := e.tradeLog.Append(persistence.TradeRow{
			TradeID: t.TradeID, BuyID: t.BidID, SellID: t.AskID,
			Price: t.Price, Quantity: t.Quantity, Timestamp: t.Timestamp,
		}); err != nil {
			e.logger.Logf(logx.Error, "append trade %d: %v", t.TradeID, err)
			return trades, newError(IoFailure, err)
		}
		e.logger.Logf(logx.Trade, "trade id=%d bid=%d ask=%d price=%d quantity=%d", t.TradeID, t.BidID, t.AskID, t.Price, t.Quantity)
		if e.outboxStore != nil {
			if err := e.outboxStore.PutNew(t); err != nil {
				e.logger.Logf(logx.Error, "outbox put %d: %v", t.TradeID, err)
			}
		}
	}

	if incoming.Remaining() > 0 {
		e.book.PushResting(incoming)
		e.index.Insert(incoming)
	}

	if err := e.rewriteSnapshots(); err != nil {
		return trades, err
	}
	e.publishTop()

	return trades, nil
}

// Cancel removes a resting order from the book.
func (e *Engine) Cancel(id uint64) error {
	o, ok := e.index.Lookup(id)
	if !ok {
		err := newError(NotFound, fmt.Errorf("order %d not found", id))
		e.logger.Logf(logx.Error, "cancel rejected: %v", err)
		return err
	}

	e.appendWAL(walog.RecordCancel, []byte(fmt.Sprintf("%d", id)))

	e.book.RemoveByID(o)
	e.index.Remove(id)
	e.logger.Logf(logx.Order, "cancel id=%d", id)

	if err := e.rewriteSnapshots(); err != nil {
		return err
	}
	e.publishTop()
	return nil
}

// SnapshotTop is a pure read of the top of book; it mutates nothing.
func (e *Engine) SnapshotTop() (bestBid, bestAsk *TopLevel) {
	if lvl := e.book.BestBid(); lvl != nil {
		bestBid = &TopLevel{Price: lvl.Price, Remaining: lvl.TotalQty}
	}
	if lvl := e.book.BestAsk(); lvl != nil {
		bestAsk = &TopLevel{Price: lvl.Price, Remaining: lvl.TotalQty}
	}
	return bestBid, bestAsk
}

// Status derives an order's status on demand rather than storing one:
// resting orders report OPEN or PARTIAL depending on whether any
// quantity has filled; anything not present in the OrderIndex is
// UNKNOWN, since filled, cancelled, and never-seen ids are
// indistinguishable without a persisted status record.
func (e *Engine) Status(id uint64) core.Status {
	o, ok := e.index.Lookup(id)
	if !ok {
		return core.Unknown
	}
	if o.Filled == 0 {
		return core.Open
	}
	return core.Partial
}

// ShowBook formats the top of book as two lines, one per side.
func (e *Engine) ShowBook() string {
	bid, ask := e.SnapshotTop()
	bidLine := "Top Buy: <empty>"
	if bid != nil {
		bidLine = fmt.Sprintf("Top Buy: %d @ %d", bid.Remaining, bid.Price)
	}
	askLine := "Top Sell: <empty>"
	if ask != nil {
		askLine = fmt.Sprintf("Top Sell: %d @ %d", ask.Remaining, ask.Price)
	}
	return bidLine + "\n" + askLine
}

// Close performs a final WAL flush, a final CSV rewrite, and closes
// every handle the engine owns, on every exit path.
func (e *Engine) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(e.rewriteSnapshots())
	if e.wal != nil {
		record(e.wal.Close())
	}
	if e.broadcaster != nil {
		if e.feedCancel != nil {
			e.feedCancel()
		}
		record(e.broadcaster.Close())
	}
	if e.outboxStore != nil {
		record(e.outboxStore.Close())
	}
	if e.feedPub != nil {
		record(e.feedPub.Close())
	}
	if e.tradeLog != nil {
		record(e.tradeLog.Close())
	}
	if e.logger != nil {
		e.logger.Log(logx.System, "engine shutting down")
		record(e.logger.Close())
	}
	return firstErr
}

func (e *Engine) mintTradeID() uint64 {
	id := e.nextTradeID
	e.nextTradeID++
	return id
}

func (e *Engine) appendWAL(t walog.RecordType, data []byte) {
	e.walSeq++
	if err := e.wal.Append(walog.NewRecord(t, e.walSeq, data)); err != nil {
		e.logger.Logf(logx.Error, "WAL append: %v", err)
	}
}

func (e *Engine) rewriteSnapshots() error {
	if err := persistence.WriteActiveOrders(e.cfg.BidsFile, collectRows(e.book.WalkBids)); err != nil {
		e.logger.Logf(logx.Error, "rewrite bids: %v", err)
		return newError(IoFailure, err)
	}
	if err := persistence.WriteActiveOrders(e.cfg.AsksFile, collectRows(e.book.WalkAsks)); err != nil {
		e.logger.Logf(logx.Error, "rewrite asks: %v", err)
		return newError(IoFailure, err)
	}
	return nil
}

func collectRows(walk func(func(*book.PriceLevel) bool)) []persistence.ActiveOrderRow {
	var rows []persistence.ActiveOrderRow
	walk(func(lvl *book.PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			rows = append(rows, persistence.ActiveOrderRow{
				OrderID: o.ID, Price: o.Price, Quantity: o.Quantity,
				Filled: o.Filled, Timestamp: o.Timestamp,
			})
		}
		return true
	})
	return rows
}

func (e *Engine) publishTop() {
	if e.feedPub == nil {
		return
	}
	bid, ask := e.SnapshotTop()
	snap := feed.TopOfBook{Timestamp: e.now()}
	if bid != nil {
		snap.HasBid, snap.BestBidPrice, snap.BestBidQty = true, bid.Price, bid.Remaining
	}
	if ask != nil {
		snap.HasAsk, snap.BestAskPrice, snap.BestAskQty = true, ask.Price, ask.Remaining
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.feedPub.Publish(ctx, snap); err != nil {
		e.logger.Logf(logx.Error, "publish top-of-book: %v", err)
	}
}
