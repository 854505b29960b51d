package book

import "testing"

func TestPriceTreeGetOrCreateFindDelete(t *testing.T) {
	tree := newPriceTree()
	lvl1 := tree.GetOrCreate(100)
	if lvl1 == nil {
		t.Fatal("GetOrCreate returned nil")
	}
	if lvl2 := tree.Find(100); lvl2 != lvl1 {
		t.Error("Find did not return the same PriceLevel")
	}

	tree.GetOrCreate(200)
	if tree.Min().Price != 100 {
		t.Error("expected min=100")
	}
	if tree.Max().Price != 200 {
		t.Error("expected max=200")
	}

	if !tree.Delete(100) {
		t.Error("Delete failed")
	}
	if tree.Find(100) != nil {
		t.Error("expected level 100 to be gone")
	}
}

func TestPriceTreeDeleteNonexistent(t *testing.T) {
	tree := newPriceTree()
	if tree.Delete(123) {
		t.Error("expected false when deleting a level that was never inserted")
	}
}

func TestPriceTreeEmptyMinMax(t *testing.T) {
	tree := newPriceTree()
	if tree.Min() != nil || tree.Max() != nil {
		t.Error("expected nil min/max on an empty tree")
	}
}

func TestPriceTreeGetOrCreateIsIdempotent(t *testing.T) {
	tree := newPriceTree()
	lvl1 := tree.GetOrCreate(150)
	lvl2 := tree.GetOrCreate(150)
	if lvl1 != lvl2 {
		t.Error("GetOrCreate should return the same node for a repeated price")
	}
}

func TestPriceTreeForEachOrdering(t *testing.T) {
	tree := newPriceTree()
	for _, p := range []int64{50, 10, 40, 20, 30} {
		tree.GetOrCreate(p)
	}

	var ascending []int64
	tree.ForEachAscending(func(lvl *PriceLevel) bool {
		ascending = append(ascending, lvl.Price)
		return true
	})
	want := []int64{10, 20, 30, 40, 50}
	if len(ascending) != len(want) {
		t.Fatalf("expected %d levels, got %d", len(want), len(ascending))
	}
	for i := range want {
		if ascending[i] != want[i] {
			t.Fatalf("expected ascending %v, got %v", want, ascending)
		}
	}

	var descending []int64
	tree.ForEachDescending(func(lvl *PriceLevel) bool {
		descending = append(descending, lvl.Price)
		return true
	})
	for i := range want {
		if descending[i] != want[len(want)-1-i] {
			t.Fatalf("expected descending order, got %v", descending)
		}
	}
}

func TestPriceTreeManyInsertsStayBalanced(t *testing.T) {
	tree := newPriceTree()
	for i := int64(0); i < 500; i++ {
		tree.GetOrCreate(i)
	}
	if tree.Size() != 500 {
		t.Fatalf("expected 500 levels, got %d", tree.Size())
	}
	for i := int64(0); i < 500; i += 7 {
		if !tree.Delete(i) {
			t.Fatalf("expected to delete level %d", i)
		}
	}
	if tree.Min() == nil || tree.Max() == nil {
		t.Fatal("expected remaining levels after partial deletion")
	}
	if tree.root.color != black {
		t.Fatal("expected a black root")
	}
	if _, ok := blackHeight(tree, tree.root); !ok {
		t.Fatal("expected no red node with a red child and equal black heights on every path")
	}
}

// blackHeight returns the black height of the subtree at n and whether
// it satisfies the red-black coloring rules.
func blackHeight(tree *priceTree, n *rbNode) (int, bool) {
	if n == tree.nilN {
		return 1, true
	}
	if n.color == red && (n.left.color == red || n.right.color == red) {
		return 0, false
	}
	l, okL := blackHeight(tree, n.left)
	r, okR := blackHeight(tree, n.right)
	if !okL || !okR || l != r {
		return 0, false
	}
	if n.color == black {
		l++
	}
	return l, true
}
