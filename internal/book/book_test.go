package book

import (
	"testing"

	"limitbook/internal/core"
)

func TestPushRestingAndBest(t *testing.T) {
	b := New()
	b.PushResting(&Order{ID: 1, Side: core.Bid, Price: 100, Quantity: 5})
	b.PushResting(&Order{ID: 2, Side: core.Bid, Price: 101, Quantity: 5})
	b.PushResting(&Order{ID: 3, Side: core.Ask, Price: 105, Quantity: 5})

	if bid := b.BestBid(); bid == nil || bid.Price != 101 {
		t.Fatalf("expected best bid 101, got %+v", bid)
	}
	if ask := b.BestAsk(); ask == nil || ask.Price != 105 {
		t.Fatalf("expected best ask 105, got %+v", ask)
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	b := New()
	o1 := &Order{ID: 1, Side: core.Bid, Price: 100, Quantity: 5}
	o2 := &Order{ID: 2, Side: core.Bid, Price: 100, Quantity: 5}
	b.PushResting(o1)
	b.PushResting(o2)

	lvl := b.LevelAt(core.Bid, 100)
	if lvl.Head() != o1 {
		t.Fatalf("expected o1 at head, got %+v", lvl.Head())
	}
	if lvl.Head().Next() != o2 {
		t.Fatalf("expected o2 second in queue")
	}
}

func TestRemoveByIDDropsEmptyLevel(t *testing.T) {
	b := New()
	o := &Order{ID: 1, Side: core.Bid, Price: 100, Quantity: 5}
	b.PushResting(o)

	if !b.RemoveByID(o) {
		t.Fatal("expected RemoveByID to succeed")
	}
	if lvl := b.LevelAt(core.Bid, 100); lvl != nil {
		t.Fatalf("expected level to be dropped once emptied, got %+v", lvl)
	}
	if b.BestBid() != nil {
		t.Fatal("expected empty book after removal")
	}
}

func TestBestOppositeMirrorsSide(t *testing.T) {
	b := New()
	b.PushResting(&Order{ID: 1, Side: core.Bid, Price: 100, Quantity: 5})
	b.PushResting(&Order{ID: 2, Side: core.Ask, Price: 105, Quantity: 5})

	if got := b.BestOpposite(core.Bid); got == nil || got.Price != 105 {
		t.Fatalf("expected opposite of BID aggressor to be best ask, got %+v", got)
	}
	if got := b.BestOpposite(core.Ask); got == nil || got.Price != 100 {
		t.Fatalf("expected opposite of ASK aggressor to be best bid, got %+v", got)
	}
}

func TestIndexLookupAndRemove(t *testing.T) {
	ix := NewIndex()
	o := &Order{ID: 42, Side: core.Ask, Price: 10, Quantity: 1}
	ix.Insert(o)

	got, ok := ix.Lookup(42)
	if !ok || got != o {
		t.Fatalf("expected to find inserted order, got %+v ok=%v", got, ok)
	}
	ix.Remove(42)
	if _, ok := ix.Lookup(42); ok {
		t.Fatal("expected order to be gone after Remove")
	}
}

func TestWalkOrdering(t *testing.T) {
	b := New()
	b.PushResting(&Order{ID: 1, Side: core.Bid, Price: 100, Quantity: 1})
	b.PushResting(&Order{ID: 2, Side: core.Bid, Price: 102, Quantity: 1})
	b.PushResting(&Order{ID: 3, Side: core.Bid, Price: 101, Quantity: 1})

	var prices []int64
	b.WalkBids(func(lvl *PriceLevel) bool {
		prices = append(prices, lvl.Price)
		return true
	})
	want := []int64{102, 101, 100}
	if len(prices) != len(want) {
		t.Fatalf("expected %d levels, got %v", len(want), prices)
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Fatalf("expected descending order %v, got %v", want, prices)
		}
	}
}
