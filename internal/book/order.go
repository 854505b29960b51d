package book

import "limitbook/internal/core"

// Order is an immutable identity plus mutable fill state. Side and
// Price double as its current book position; prev/next are the
// intrusive doubly-linked list pointers a PriceLevel threads through
// its resting orders, so that an OrderIndex entry can be a direct
// handle to this struct rather than a (side, price) pair that needs
// an O(k) queue scan to resolve.
type Order struct {
	ID        uint64
	Side      core.Side
	Price     int64
	Quantity  int64
	Filled    int64
	Timestamp int64

	prev *Order
	next *Order
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 { return o.Quantity - o.Filled }

// IsFilled reports whether the order has no remaining quantity.
func (o *Order) IsFilled() bool { return o.Remaining() == 0 }

// Next returns the next order at the same price level, in arrival order.
func (o *Order) Next() *Order { return o.next }
