package book

import "limitbook/internal/core"

// Index is the auxiliary id -> order mapping that gives O(1) lookup
// and, combined with PriceLevel.Unlink, O(1) cancellation: the stored
// value is a direct handle into the intrusive list node rather than a
// (side, price) pair that would need an O(k) queue scan to resolve.
type Index struct {
	byID map[uint64]*Order
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{byID: make(map[uint64]*Order)}
}

// Insert records a resting order's handle under its id. The caller
// must ensure the id is not already present (ids are monotonic and
// never reused).
func (ix *Index) Insert(o *Order) {
	ix.byID[o.ID] = o
}

// Lookup returns the order handle for id and whether it was found.
func (ix *Index) Lookup(id uint64) (*Order, bool) {
	o, ok := ix.byID[id]
	return o, ok
}

// Remove drops id from the index.
func (ix *Index) Remove(id uint64) {
	delete(ix.byID, id)
}

// Len returns the number of resting orders currently indexed.
func (ix *Index) Len() int { return len(ix.byID) }

// Location returns the (side, price) an indexed order currently
// rests at, preserving the contract described in the design notes
// even though the stored value is a richer handle.
func (ix *Index) Location(id uint64) (side core.Side, price int64, ok bool) {
	o, found := ix.byID[id]
	if !found {
		return 0, 0, false
	}
	return o.Side, o.Price, true
}
