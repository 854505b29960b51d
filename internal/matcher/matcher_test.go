package matcher

import (
	"testing"

	"limitbook/internal/book"
	"limitbook/internal/core"
)

func fixedClock() int64 { return 1000 }

func newMinter() func() uint64 {
	next := uint64(1)
	return func() uint64 {
		id := next
		next++
		return id
	}
}

// No cross: incoming order simply rests.
func TestNoCrossPureRest(t *testing.T) {
	b := book.New()
	bid := &book.Order{ID: 1, Side: core.Bid, Price: 100, Quantity: 10}
	b.PushResting(bid)

	ask := &book.Order{ID: 2, Side: core.Ask, Price: 105, Quantity: 10}
	trades := Match(ask, b, newMinter(), fixedClock)
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	b.PushResting(ask)

	if lvl := b.BestBid(); lvl == nil || lvl.Price != 100 || lvl.TotalQty != 10 {
		t.Fatalf("expected resting bid 100x10, got %+v", lvl)
	}
	if lvl := b.BestAsk(); lvl == nil || lvl.Price != 105 || lvl.TotalQty != 10 {
		t.Fatalf("expected resting ask 105x10, got %+v", lvl)
	}
}

// Exact cross: incoming order fully fills against one resting order.
func TestExactCross(t *testing.T) {
	b := book.New()
	b.PushResting(&book.Order{ID: 1, Side: core.Ask, Price: 100, Quantity: 5})

	bid := &book.Order{ID: 2, Side: core.Bid, Price: 100, Quantity: 5}
	trades := Match(bid, b, newMinter(), fixedClock)

	if len(trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.TradeID != 1 || tr.BidID != 2 || tr.AskID != 1 || tr.Price != 100 || tr.Quantity != 5 {
		t.Fatalf("unexpected trade: %+v", tr)
	}
	if !bid.IsFilled() {
		t.Fatal("expected incoming bid fully filled")
	}
	if b.BestBid() != nil || b.BestAsk() != nil {
		t.Fatal("expected both sides empty after exact cross")
	}
}

// Price-time priority within a level.
func TestPriceTimePriority(t *testing.T) {
	b := book.New()
	o1 := &book.Order{ID: 1, Side: core.Ask, Price: 100, Quantity: 5}
	o2 := &book.Order{ID: 2, Side: core.Ask, Price: 100, Quantity: 7}
	b.PushResting(o1)
	b.PushResting(o2)

	bid := &book.Order{ID: 3, Side: core.Bid, Price: 100, Quantity: 9}
	trades := Match(bid, b, newMinter(), fixedClock)

	if len(trades) != 2 {
		t.Fatalf("expected two trades, got %d", len(trades))
	}
	if trades[0].AskID != 1 || trades[0].Quantity != 5 {
		t.Fatalf("expected first trade to exhaust order 1 for qty 5, got %+v", trades[0])
	}
	if trades[1].AskID != 2 || trades[1].Quantity != 4 {
		t.Fatalf("expected second trade against order 2 for qty 4, got %+v", trades[1])
	}
	if o2.Remaining() != 3 {
		t.Fatalf("expected order 2 to rest with remaining=3, got %d", o2.Remaining())
	}
}

// Price improvement: trade prints at the resting price.
func TestPriceImprovement(t *testing.T) {
	b := book.New()
	b.PushResting(&book.Order{ID: 1, Side: core.Ask, Price: 95, Quantity: 4})

	bid := &book.Order{ID: 2, Side: core.Bid, Price: 100, Quantity: 4}
	trades := Match(bid, b, newMinter(), fixedClock)

	if len(trades) != 1 || trades[0].Price != 95 {
		t.Fatalf("expected a single trade at resting price 95, got %+v", trades)
	}
}

// Walking multiple levels, partial fill on incoming.
func TestWalkTheBook(t *testing.T) {
	b := book.New()
	b.PushResting(&book.Order{ID: 1, Side: core.Ask, Price: 100, Quantity: 3})
	b.PushResting(&book.Order{ID: 2, Side: core.Ask, Price: 101, Quantity: 3})
	b.PushResting(&book.Order{ID: 3, Side: core.Ask, Price: 102, Quantity: 3})

	bid := &book.Order{ID: 4, Side: core.Bid, Price: 101, Quantity: 7}
	trades := Match(bid, b, newMinter(), fixedClock)

	if len(trades) != 2 {
		t.Fatalf("expected two trades, got %d", len(trades))
	}
	if trades[0].Price != 100 || trades[0].Quantity != 3 {
		t.Fatalf("unexpected first trade: %+v", trades[0])
	}
	if trades[1].Price != 101 || trades[1].Quantity != 3 {
		t.Fatalf("unexpected second trade: %+v", trades[1])
	}
	if bid.Remaining() != 1 {
		t.Fatalf("expected incoming bid to have remaining=1, got %d", bid.Remaining())
	}

	lvl := b.LevelAt(core.Ask, 102)
	if lvl == nil || lvl.TotalQty != 3 {
		t.Fatalf("expected untouched level at 102 with qty 3, got %+v", lvl)
	}
	if b.LevelAt(core.Ask, 100) != nil || b.LevelAt(core.Ask, 101) != nil {
		t.Fatal("expected fully-drained levels to be removed from the tree")
	}
}

func TestNoTradeWhenPriceDoesNotCross(t *testing.T) {
	b := book.New()
	b.PushResting(&book.Order{ID: 1, Side: core.Ask, Price: 110, Quantity: 5})

	bid := &book.Order{ID: 2, Side: core.Bid, Price: 100, Quantity: 5}
	trades := Match(bid, b, newMinter(), fixedClock)
	if len(trades) != 0 {
		t.Fatalf("expected no trades when incoming price does not cross, got %d", len(trades))
	}
}
