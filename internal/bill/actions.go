package bill

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound reports a mutation that references an unknown item or
	// person. The document is left untouched.
	ErrNotFound = errors.New("bill: target not found")
	// ErrUnknownAction reports an action name outside the closed set.
	ErrUnknownAction = errors.New("bill: unknown action")
	// ErrMissingID reports an action that was never assigned an id by the
	// authoritative side.
	ErrMissingID = errors.New("bill: id required")
)

// Action is one named mutation of the bill document. The set of
// implementations is closed; Apply dispatches over it exhaustively.
type Action interface {
	ActionName() string
}

// AddItem appends a line item. ID is assigned by the authority via Fill
// before the action is applied or broadcast.
type AddItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// RemoveItem deletes a line item by id.
type RemoveItem struct {
	ID string `json:"id"`
}

// UpdateItem patches item fields; nil fields are left unchanged.
type UpdateItem struct {
	ID       string   `json:"id"`
	Name     *string  `json:"name,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Quantity *int     `json:"quantity,omitempty"`
}

// SetItems replaces the whole item list, e.g. after a receipt scan.
type SetItems struct {
	Items []Item `json:"items"`
}

// AddPerson appends a participant. The color is taken from the palette at
// the document's current color index, which keeps replays deterministic.
type AddPerson struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RemovePerson deletes a participant and strips them from every item's
// assignment set in the same application.
type RemovePerson struct {
	ID string `json:"id"`
}

// ToggleAssignment flips whether a person shares an item.
type ToggleAssignment struct {
	ItemID   string `json:"itemId"`
	PersonID string `json:"personId"`
}

// UpdateSettings patches bill-level settings; nil fields are unchanged.
type UpdateSettings struct {
	TaxAmount       *float64 `json:"taxAmount,omitempty"`
	TipPercent      *float64 `json:"tipPercent,omitempty"`
	TipAmount       *float64 `json:"tipAmount,omitempty"`
	CashBackPercent *float64 `json:"cashBackPercent,omitempty"`
}

// ResetAll restores the empty default document.
type ResetAll struct{}

func (AddItem) ActionName() string          { return "addItem" }
func (RemoveItem) ActionName() string       { return "removeItem" }
func (UpdateItem) ActionName() string       { return "updateItem" }
func (SetItems) ActionName() string         { return "setItems" }
func (AddPerson) ActionName() string        { return "addPerson" }
func (RemovePerson) ActionName() string     { return "removePerson" }
func (ToggleAssignment) ActionName() string { return "toggleAssignment" }
func (UpdateSettings) ActionName() string   { return "updateSettings" }
func (ResetAll) ActionName() string         { return "resetAll" }

// Fill assigns ids to creation actions that lack them. Only the authority
// calls this, so guests forwarding an intent never mint ids and the filled
// form that gets broadcast replays identically everywhere.
func Fill(a Action) Action {
	switch act := a.(type) {
	case AddItem:
		if act.ID == "" {
			act.ID = uuid.NewString()
		}
		return act
	case AddPerson:
		if act.ID == "" {
			act.ID = uuid.NewString()
		}
		return act
	case SetItems:
		items := append([]Item(nil), act.Items...)
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.NewString()
			}
		}
		act.Items = items
		return act
	default:
		return a
	}
}

// Apply mutates b according to a. Validation happens before any write, so
// a returned error means the document is unchanged.
func Apply(b *Bill, a Action) error {
	switch act := a.(type) {
	case AddItem:
		if act.ID == "" {
			return ErrMissingID
		}
		name := act.Name
		if name == "" {
			name = "New Item"
		}
		qty := act.Quantity
		if qty <= 0 {
			qty = 1
		}
		b.Items = append(b.Items, Item{
			ID:         act.ID,
			Name:       name,
			Price:      act.Price,
			Quantity:   qty,
			AssignedTo: []string{},
		})
		return nil

	case RemoveItem:
		for i := range b.Items {
			if b.Items[i].ID == act.ID {
				b.Items = append(b.Items[:i], b.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("remove item %s: %w", act.ID, ErrNotFound)

	case UpdateItem:
		item := b.item(act.ID)
		if item == nil {
			return fmt.Errorf("update item %s: %w", act.ID, ErrNotFound)
		}
		if act.Name != nil {
			item.Name = *act.Name
		}
		if act.Price != nil {
			item.Price = *act.Price
		}
		if act.Quantity != nil {
			item.Quantity = *act.Quantity
		}
		return nil

	case SetItems:
		items := make([]Item, len(act.Items))
		for i, item := range act.Items {
			if item.ID == "" {
				return ErrMissingID
			}
			items[i] = item
			if item.AssignedTo == nil {
				items[i].AssignedTo = []string{}
			} else {
				items[i].AssignedTo = append([]string(nil), item.AssignedTo...)
			}
		}
		b.Items = items
		return nil

	case AddPerson:
		if act.ID == "" {
			return ErrMissingID
		}
		b.People = append(b.People, Person{
			ID:    act.ID,
			Name:  act.Name,
			Color: PersonColors[b.ColorIndex%len(PersonColors)],
		})
		b.ColorIndex++
		return nil

	case RemovePerson:
		idx := -1
		for i := range b.People {
			if b.People[i].ID == act.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("remove person %s: %w", act.ID, ErrNotFound)
		}
		b.People = append(b.People[:idx], b.People[idx+1:]...)
		// Cascade: assignments may only reference present participants.
		for i := range b.Items {
			assigned := b.Items[i].AssignedTo
			for j := 0; j < len(assigned); j++ {
				if assigned[j] == act.ID {
					assigned = append(assigned[:j], assigned[j+1:]...)
					j--
				}
			}
			b.Items[i].AssignedTo = assigned
		}
		return nil

	case ToggleAssignment:
		item := b.item(act.ItemID)
		if item == nil {
			return fmt.Errorf("toggle assignment on item %s: %w", act.ItemID, ErrNotFound)
		}
		known := false
		for _, p := range b.People {
			if p.ID == act.PersonID {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("toggle assignment for person %s: %w", act.PersonID, ErrNotFound)
		}
		for i, id := range item.AssignedTo {
			if id == act.PersonID {
				item.AssignedTo = append(item.AssignedTo[:i], item.AssignedTo[i+1:]...)
				return nil
			}
		}
		item.AssignedTo = append(item.AssignedTo, act.PersonID)
		return nil

	case UpdateSettings:
		if act.TaxAmount != nil {
			b.Settings.TaxAmount = *act.TaxAmount
		}
		if act.TipPercent != nil {
			b.Settings.TipPercent = *act.TipPercent
		}
		if act.TipAmount != nil {
			b.Settings.TipAmount = *act.TipAmount
		}
		if act.CashBackPercent != nil {
			b.Settings.CashBackPercent = *act.CashBackPercent
		}
		return nil

	case ResetAll:
		*b = New()
		return nil

	default:
		return fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

// EncodeAction serializes an action as a {action, data} pair for the wire.
func EncodeAction(a Action) (name string, data json.RawMessage, err error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", nil, fmt.Errorf("encode action %s: %w", a.ActionName(), err)
	}
	return a.ActionName(), raw, nil
}

// DecodeAction reverses EncodeAction. Unknown names fail with
// ErrUnknownAction so callers can drop the message defensively.
func DecodeAction(name string, data json.RawMessage) (Action, error) {
	var a Action
	switch name {
	case AddItem{}.ActionName():
		a = &AddItem{}
	case RemoveItem{}.ActionName():
		a = &RemoveItem{}
	case UpdateItem{}.ActionName():
		a = &UpdateItem{}
	case SetItems{}.ActionName():
		a = &SetItems{}
	case AddPerson{}.ActionName():
		a = &AddPerson{}
	case RemovePerson{}.ActionName():
		a = &RemovePerson{}
	case ToggleAssignment{}.ActionName():
		a = &ToggleAssignment{}
	case UpdateSettings{}.ActionName():
		a = &UpdateSettings{}
	case ResetAll{}.ActionName():
		a = &ResetAll{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, a); err != nil {
			return nil, fmt.Errorf("decode action %s: %w", name, err)
		}
	}
	return deref(a), nil
}

func deref(a Action) Action {
	switch act := a.(type) {
	case *AddItem:
		return *act
	case *RemoveItem:
		return *act
	case *UpdateItem:
		return *act
	case *SetItems:
		return *act
	case *AddPerson:
		return *act
	case *RemovePerson:
		return *act
	case *ToggleAssignment:
		return *act
	case *UpdateSettings:
		return *act
	case *ResetAll:
		return *act
	default:
		return a
	}
}
