// Package matcher implements the pure price-time priority matching
// algorithm: given an incoming order and the book, it produces the
// ordered list of trades and mutates resting orders' filled
// quantities. It never inserts the incoming order's residual into
// the book; that is the coordinator's job.
package matcher

import (
	"limitbook/internal/book"
	"limitbook/internal/core"
)

// Clock supplies the timestamp stamped onto each trade.
type Clock func() int64

// Match runs incoming against the opposite side of b, minting trade
// ids via mintTradeID, and returns the trades struck in the order
// they occurred (best price first, then FIFO within a level).
//
// Side convention: a BID aggressor walks asks from the lowest price
// upward, stopping when the book is empty, the incoming order is
// filled, or the incoming price is below the best remaining ask. An
// ASK aggressor is the mirror image over bids.
func Match(incoming *book.Order, b *book.Book, mintTradeID func() uint64, now Clock) []core.Trade {
	var trades []core.Trade

	for incoming.Remaining() > 0 {
		level := b.BestOpposite(incoming.Side)
		if level == nil {
			break
		}
		if !crosses(incoming, level.Price) {
			break
		}

		resting := level.Head()
		qty := min64(incoming.Remaining(), resting.Remaining())

		trade := core.Trade{
			TradeID:   mintTradeID(),
			Price:     resting.Price,
			Quantity:  qty,
			Timestamp: now(),
		}
		if incoming.Side == core.Bid {
			trade.BidID, trade.AskID = incoming.ID, resting.ID
		} else {
			trade.BidID, trade.AskID = resting.ID, incoming.ID
		}
		trades = append(trades, trade)

		incoming.Filled += qty
		resting.Filled += qty

		level.RecordFill(qty)
		if resting.IsFilled() {
			b.PopHead(resting.Side, resting.Price)
		}
	}

	return trades
}

// crosses reports whether an aggressor priced at incoming.Price can
// still trade against a resting level at levelPrice.
func crosses(incoming *book.Order, levelPrice int64) bool {
	if incoming.Side == core.Bid {
		return incoming.Price >= levelPrice
	}
	return incoming.Price <= levelPrice
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
