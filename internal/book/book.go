package book

import "limitbook/internal/core"

// Book holds the two price-indexed sides of the resting order book.
// Bids are best-first when walked descending by price; asks are
// best-first when walked ascending. Each side is a red-black tree of
// PriceLevels, and each PriceLevel is an intrusive FIFO queue.
type Book struct {
	bids *priceTree
	asks *priceTree
}

// New returns an empty Book.
func New() *Book {
	return &Book{bids: newPriceTree(), asks: newPriceTree()}
}

func (b *Book) sideTree(side core.Side) *priceTree {
	if side == core.Bid {
		return b.bids
	}
	return b.asks
}

// BestBid returns the best (highest) bid level, or nil if bids are empty.
func (b *Book) BestBid() *PriceLevel { return b.bids.Max() }

// BestAsk returns the best (lowest) ask level, or nil if asks are empty.
func (b *Book) BestAsk() *PriceLevel { return b.asks.Min() }

// LevelAt returns the level at price on side, or nil if none rests there.
func (b *Book) LevelAt(side core.Side, price int64) *PriceLevel {
	return b.sideTree(side).Find(price)
}

// PushResting appends o to the FIFO queue at its (Side, Price),
// creating the level if it does not yet exist.
func (b *Book) PushResting(o *Order) {
	lvl := b.sideTree(o.Side).GetOrCreate(o.Price)
	lvl.Enqueue(o)
}

// PopHead removes and returns the head order of the level at
// (side, price). Precondition: a level exists there with a head.
// The level is dropped from the tree if it becomes empty.
func (b *Book) PopHead(side core.Side, price int64) *Order {
	tree := b.sideTree(side)
	lvl := tree.Find(price)
	if lvl == nil {
		return nil
	}
	o := lvl.PopHead()
	if lvl.Empty() {
		tree.Delete(price)
	}
	return o
}

// RemoveByID unlinks o from its resting level in O(1), given the
// direct handle the OrderIndex stores. Drops the level if it becomes
// empty. Returns whether a level existed to remove it from.
func (b *Book) RemoveByID(o *Order) bool {
	tree := b.sideTree(o.Side)
	lvl := tree.Find(o.Price)
	if lvl == nil {
		return false
	}
	lvl.Unlink(o)
	if lvl.Empty() {
		tree.Delete(o.Price)
	}
	return true
}

// WalkBids visits bid levels best-first (descending by price).
func (b *Book) WalkBids(fn func(*PriceLevel) bool) { b.bids.ForEachDescending(fn) }

// WalkAsks visits ask levels best-first (ascending by price).
func (b *Book) WalkAsks(fn func(*PriceLevel) bool) { b.asks.ForEachAscending(fn) }

// BestOpposite returns the best level on the side opposite
// incomingSide: the lowest ask for a BID aggressor, the highest bid
// for an ASK aggressor. The matcher re-queries this after every
// change to the level it is draining, rather than holding a tree
// iterator across mutations, since emptying a level deletes its
// node from the red-black tree.
func (b *Book) BestOpposite(incomingSide core.Side) *PriceLevel {
	if incomingSide == core.Bid {
		return b.BestAsk()
	}
	return b.BestBid()
}
