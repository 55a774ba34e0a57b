package bill

// PersonTotal is one participant's share of the bill.
type PersonTotal struct {
	PersonID      string
	PersonName    string
	ItemsTotal    float64
	TaxShare      float64
	TipShare      float64
	CashBackShare float64
	GrandTotal    float64
}

// Subtotal sums item price times quantity.
func (b Bill) Subtotal() float64 {
	var sum float64
	for _, item := range b.Items {
		sum += item.Price * float64(item.Quantity)
	}
	return sum
}

// EffectiveTipAmount returns the fixed tip override when set, otherwise the
// percentage of the subtotal.
func (b Bill) EffectiveTipAmount() float64 {
	if b.Settings.TipAmount > 0 {
		return b.Settings.TipAmount
	}
	return b.Subtotal() * b.Settings.TipPercent / 100
}

// EffectiveCashBack returns the cash-back amount applied to the subtotal.
func (b Bill) EffectiveCashBack() float64 {
	return b.Subtotal() * b.Settings.CashBackPercent / 100
}

// GrandTotal is subtotal plus tax and tip minus cash back.
func (b Bill) GrandTotal() float64 {
	return b.Subtotal() + b.Settings.TaxAmount + b.EffectiveTipAmount() - b.EffectiveCashBack()
}

// UnassignedItems returns items nobody has claimed yet.
func (b Bill) UnassignedItems() []Item {
	var out []Item
	for _, item := range b.Items {
		if len(item.AssignedTo) == 0 {
			out = append(out, item)
		}
	}
	return out
}

// Totals computes each participant's share. Items split evenly among their
// assignees; tax, tip, and cash back are apportioned by each person's share
// of the subtotal.
func Totals(b Bill) []PersonTotal {
	subtotal := b.Subtotal()
	tip := b.EffectiveTipAmount()
	cashBack := b.EffectiveCashBack()

	totals := make([]PersonTotal, 0, len(b.People))
	for _, person := range b.People {
		var itemsTotal float64
		for _, item := range b.Items {
			for _, id := range item.AssignedTo {
				if id == person.ID {
					itemsTotal += item.Price * float64(item.Quantity) / float64(len(item.AssignedTo))
					break
				}
			}
		}

		var proportion float64
		if subtotal > 0 {
			proportion = itemsTotal / subtotal
		}
		taxShare := b.Settings.TaxAmount * proportion
		tipShare := tip * proportion
		cashBackShare := cashBack * proportion

		totals = append(totals, PersonTotal{
			PersonID:      person.ID,
			PersonName:    person.Name,
			ItemsTotal:    itemsTotal,
			TaxShare:      taxShare,
			TipShare:      tipShare,
			CashBackShare: cashBackShare,
			GrandTotal:    itemsTotal + taxShare + tipShare - cashBackShare,
		})
	}
	return totals
}
