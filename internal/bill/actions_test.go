package bill

import (
	"errors"
	"testing"
)

func TestAddItemDefaults(t *testing.T) {
	b := New()
	a := Fill(AddItem{}).(AddItem)
	if a.ID == "" {
		t.Fatalf("expected Fill to assign an id")
	}
	if err := Apply(&b, a); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(b.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(b.Items))
	}
	item := b.Items[0]
	if item.Name != "New Item" {
		t.Fatalf("expected default name, got %q", item.Name)
	}
	if item.Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", item.Quantity)
	}
	if item.AssignedTo == nil || len(item.AssignedTo) != 0 {
		t.Fatalf("expected empty assignment set, got %v", item.AssignedTo)
	}
}

func TestAddItemWithoutIDFails(t *testing.T) {
	b := New()
	if err := Apply(&b, AddItem{Name: "Pizza"}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if len(b.Items) != 0 {
		t.Fatalf("document mutated on failed apply")
	}
}

func TestRemoveMissingItemLeavesDocumentUntouched(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12}))
	before := b.Clone()

	if err := Apply(&b, RemoveItem{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !b.Equal(before) {
		t.Fatalf("document changed by failed removal")
	}
}

func TestUpdateItemPatchesOnlyProvidedFields(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12, Quantity: 2}))
	id := b.Items[0].ID

	price := 14.50
	mustApply(t, &b, UpdateItem{ID: id, Price: &price})

	item := b.Items[0]
	if item.Price != 14.50 {
		t.Fatalf("expected price 14.50, got %v", item.Price)
	}
	if item.Name != "Pizza" || item.Quantity != 2 {
		t.Fatalf("unset fields changed: %+v", item)
	}
}

func TestAddPersonRotatesPalette(t *testing.T) {
	b := New()
	for i := 0; i < len(PersonColors)+1; i++ {
		mustApply(t, &b, Fill(AddPerson{Name: "p"}))
	}
	if b.People[0].Color != PersonColors[0] {
		t.Fatalf("first person color %q, want %q", b.People[0].Color, PersonColors[0])
	}
	wrapped := b.People[len(PersonColors)]
	if wrapped.Color != PersonColors[0] {
		t.Fatalf("palette did not wrap: got %q", wrapped.Color)
	}
	if b.ColorIndex != len(PersonColors)+1 {
		t.Fatalf("color index %d, want %d", b.ColorIndex, len(PersonColors)+1)
	}
}

func TestRemovePersonCascadesAssignments(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12}))
	mustApply(t, &b, Fill(AddPerson{Name: "Alice"}))
	mustApply(t, &b, Fill(AddPerson{Name: "Bob"}))
	itemID := b.Items[0].ID
	alice, bob := b.People[0].ID, b.People[1].ID
	mustApply(t, &b, ToggleAssignment{ItemID: itemID, PersonID: alice})
	mustApply(t, &b, ToggleAssignment{ItemID: itemID, PersonID: bob})

	mustApply(t, &b, RemovePerson{ID: alice})

	if len(b.People) != 1 || b.People[0].ID != bob {
		t.Fatalf("unexpected people after removal: %+v", b.People)
	}
	assigned := b.Items[0].AssignedTo
	if len(assigned) != 1 || assigned[0] != bob {
		t.Fatalf("assignments not cascaded: %v", assigned)
	}
}

func TestToggleAssignmentFlips(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12}))
	mustApply(t, &b, Fill(AddPerson{Name: "Alice"}))
	itemID := b.Items[0].ID
	personID := b.People[0].ID

	mustApply(t, &b, ToggleAssignment{ItemID: itemID, PersonID: personID})
	if len(b.Items[0].AssignedTo) != 1 {
		t.Fatalf("expected assignment after first toggle")
	}
	mustApply(t, &b, ToggleAssignment{ItemID: itemID, PersonID: personID})
	if len(b.Items[0].AssignedTo) != 0 {
		t.Fatalf("expected assignment removed after second toggle")
	}
}

func TestToggleAssignmentValidatesBothSides(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12}))
	itemID := b.Items[0].ID

	if err := Apply(&b, ToggleAssignment{ItemID: itemID, PersonID: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown person, got %v", err)
	}
	if err := Apply(&b, ToggleAssignment{ItemID: "ghost", PersonID: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown item, got %v", err)
	}
}

func TestUpdateSettingsPatches(t *testing.T) {
	b := New()
	tax := 3.25
	mustApply(t, &b, UpdateSettings{TaxAmount: &tax})
	if b.Settings.TaxAmount != 3.25 {
		t.Fatalf("tax %v, want 3.25", b.Settings.TaxAmount)
	}
	if b.Settings.TipPercent != DefaultTipPercent {
		t.Fatalf("tip percent changed: %v", b.Settings.TipPercent)
	}
}

func TestResetAllRestoresDefaults(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12}))
	mustApply(t, &b, Fill(AddPerson{Name: "Alice"}))
	mustApply(t, &b, ResetAll{})

	if !b.Equal(New()) {
		t.Fatalf("expected default document after reset, got %+v", b)
	}
}

func TestFilledActionReplaysIdentically(t *testing.T) {
	filled := Fill(AddPerson{Name: "Alice"})

	name, data, err := EncodeAction(filled)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeAction(name, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	host, guest := New(), New()
	mustApply(t, &host, filled)
	mustApply(t, &guest, decoded)
	if !host.Equal(guest) {
		t.Fatalf("replayed action diverged:\nhost  %+v\nguest %+v", host, guest)
	}
}

func TestDecodeUnknownActionFails(t *testing.T) {
	if _, err := DecodeAction("dropTable", nil); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	b := New()
	mustApply(t, &b, Fill(AddItem{Name: "Pizza", Price: 12}))
	mustApply(t, &b, Fill(AddPerson{Name: "Alice"}))
	mustApply(t, &b, ToggleAssignment{ItemID: b.Items[0].ID, PersonID: b.People[0].ID})

	cp := b.Clone()
	cp.Items[0].Name = "Changed"
	cp.Items[0].AssignedTo[0] = "changed"
	cp.People[0].Name = "Changed"

	if b.Items[0].Name != "Pizza" || b.People[0].Name != "Alice" {
		t.Fatalf("clone shares memory with original")
	}
	if b.Items[0].AssignedTo[0] == "changed" {
		t.Fatalf("clone shares assignment slice with original")
	}
}

func mustApply(t *testing.T, b *Bill, a Action) {
	t.Helper()
	if err := Apply(b, Fill(a)); err != nil {
		t.Fatalf("apply %s: %v", a.ActionName(), err)
	}
}
