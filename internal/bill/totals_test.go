package bill

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSubtotalAndGrandTotal(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12, Quantity: 2}))
	mustApply(t, &b, Fill(AddItem{Name: "Soda", Price: 3}))

	if got := b.Subtotal(); !almostEqual(got, 27) {
		t.Fatalf("subtotal %v, want 27", got)
	}

	tax, tip := 2.0, 10.0
	mustApply(t, &b, UpdateSettings{TaxAmount: &tax, TipPercent: &tip})
	// 27 + 2 tax + 2.70 tip
	if got := b.GrandTotal(); !almostEqual(got, 31.70) {
		t.Fatalf("grand total %v, want 31.70", got)
	}
}

func TestTipAmountOverridesPercent(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 10}))

	fixed := 5.0
	mustApply(t, &b, UpdateSettings{TipAmount: &fixed})
	if got := b.EffectiveTipAmount(); !almostEqual(got, 5) {
		t.Fatalf("tip %v, want fixed 5", got)
	}
}

func TestTotalsEvenSplitAndProportionalShares(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12}))
	mustApply(t, &b, Fill(AddItem{Name: "Salad", Price: 8}))
	mustApply(t, &b, Fill(AddPerson{Name: "Alice"}))
	mustApply(t, &b, Fill(AddPerson{Name: "Bob"}))
	pizza, salad := b.Items[0].ID, b.Items[1].ID
	alice, bob := b.People[0].ID, b.People[1].ID

	// Pizza split; salad is Alice's alone.
	mustApply(t, &b, ToggleAssignment{ItemID: pizza, PersonID: alice})
	mustApply(t, &b, ToggleAssignment{ItemID: pizza, PersonID: bob})
	mustApply(t, &b, ToggleAssignment{ItemID: salad, PersonID: alice})

	tax, tip := 2.0, 0.0
	mustApply(t, &b, UpdateSettings{TaxAmount: &tax, TipPercent: &tip})

	totals := Totals(b)
	if len(totals) != 2 {
		t.Fatalf("expected totals for 2 people, got %d", len(totals))
	}
	var aliceTotal, bobTotal PersonTotal
	for _, pt := range totals {
		switch pt.PersonID {
		case alice:
			aliceTotal = pt
		case bob:
			bobTotal = pt
		}
	}

	if !almostEqual(aliceTotal.ItemsTotal, 14) {
		t.Fatalf("alice items %v, want 14", aliceTotal.ItemsTotal)
	}
	if !almostEqual(bobTotal.ItemsTotal, 6) {
		t.Fatalf("bob items %v, want 6", bobTotal.ItemsTotal)
	}
	// Tax apportioned 14/20 and 6/20.
	if !almostEqual(aliceTotal.TaxShare, 1.4) || !almostEqual(bobTotal.TaxShare, 0.6) {
		t.Fatalf("tax shares %v/%v, want 1.4/0.6", aliceTotal.TaxShare, bobTotal.TaxShare)
	}
	if !almostEqual(aliceTotal.GrandTotal+bobTotal.GrandTotal, b.GrandTotal()) {
		t.Fatalf("shares %v do not sum to grand total %v",
			aliceTotal.GrandTotal+bobTotal.GrandTotal, b.GrandTotal())
	}
}

func TestUnassignedItems(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12}))
	mustApply(t, &b, Fill(AddItem{Name: "Soda", Price: 3}))
	mustApply(t, &b, Fill(AddPerson{Name: "Alice"}))
	mustApply(t, &b, ToggleAssignment{ItemID: b.Items[0].ID, PersonID: b.People[0].ID})

	un := b.UnassignedItems()
	if len(un) != 1 || un[0].Name != "Soda" {
		t.Fatalf("unexpected unassigned items: %+v", un)
	}
}
