// Package bill holds the shared bill document and the closed set of
// mutations that may be applied to it. The document itself is a plain
// value; ownership and mutation rights are enforced by the session layer.
package bill

// Item is one line on the receipt. AssignedTo lists person ids that split
// the line's cost evenly.
type Item struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      float64  `json:"price"`
	Quantity   int      `json:"quantity"`
	AssignedTo []string `json:"assignedTo"`
}

// Person is a participant in the split.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Settings holds bill-level adjustments. TipAmount overrides TipPercent
// when non-zero.
type Settings struct {
	TaxAmount       float64 `json:"taxAmount"`
	TipPercent      float64 `json:"tipPercent"`
	TipAmount       float64 `json:"tipAmount"`
	CashBackPercent float64 `json:"cashBackPercent"`
}

// Bill is the full synchronized document. ColorIndex tracks the next
// palette slot so person colors stay deterministic across replays.
type Bill struct {
	Items      []Item   `json:"items"`
	People     []Person `json:"people"`
	Settings   Settings `json:"settings"`
	ColorIndex int      `json:"colorIndex"`
}

// PersonColors is the badge palette, rotated as people are added.
var PersonColors = []string{
	"#f87171",
	"#fb923c",
	"#facc15",
	"#4ade80",
	"#22d3ee",
	"#818cf8",
	"#e879f9",
	"#fb7185",
}

// DefaultTipPercent seeds new bills.
const DefaultTipPercent = 18

// New returns an empty bill with default settings.
func New() Bill {
	return Bill{Settings: Settings{TipPercent: DefaultTipPercent}}
}

// Clone returns a deep copy; the copy shares no slices with the original.
func (b Bill) Clone() Bill {
	cp := b
	cp.Items = make([]Item, len(b.Items))
	for i, item := range b.Items {
		cp.Items[i] = item
		cp.Items[i].AssignedTo = append([]string(nil), item.AssignedTo...)
	}
	cp.People = append([]Person(nil), b.People...)
	return cp
}

// Equal reports deep equality of two bills.
func (b Bill) Equal(other Bill) bool {
	if b.ColorIndex != other.ColorIndex || b.Settings != other.Settings {
		return false
	}
	if len(b.Items) != len(other.Items) || len(b.People) != len(other.People) {
		return false
	}
	for i, item := range b.Items {
		if !itemEqual(item, other.Items[i]) {
			return false
		}
	}
	for i, p := range b.People {
		if p != other.People[i] {
			return false
		}
	}
	return true
}

func itemEqual(a, b Item) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Price != b.Price || a.Quantity != b.Quantity {
		return false
	}
	if len(a.AssignedTo) != len(b.AssignedTo) {
		return false
	}
	for i, id := range a.AssignedTo {
		if id != b.AssignedTo[i] {
			return false
		}
	}
	return true
}

func (b *Bill) item(id string) *Item {
	for i := range b.Items {
		if b.Items[i].ID == id {
			return &b.Items[i]
		}
	}
	return nil
}
