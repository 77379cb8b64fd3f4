package order

import (
	"time"

	"github.com/cassa/backend/internal/domain/shared"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// mergeSelections validates selections and sums duplicate line ids,
// preserving first-seen order.
func (o *Order) mergeSelections(selections []Selection) ([]Selection, error) {
	if len(selections) == 0 {
		return nil, shared.NewValidationError("at least one line must be selected")
	}
	index := make(map[uuid.UUID]int, len(selections))
	merged := make([]Selection, 0, len(selections))
	for _, s := range selections {
		if s.Quantity <= 0 {
			return nil, shared.NewValidationError("quantity for line %s must be positive", s.LineID)
		}
		if _, ok := o.Line(s.LineID); !ok {
			return nil, shared.NewValidationError("line %s does not belong to order %s", s.LineID, o.Number)
		}
		if i, ok := index[s.LineID]; ok {
			merged[i].Quantity += s.Quantity
			continue
		}
		index[s.LineID] = len(merged)
		merged = append(merged, s)
	}
	return merged, nil
}

// SelectionValue prices a selection at the lines' unit prices
func (o *Order) SelectionValue(selections []Selection) (valueobject.Money, error) {
	merged, err := o.mergeSelections(selections)
	if err != nil {
		return valueobject.Zero, err
	}
	value := valueobject.Zero
	for _, s := range merged {
		line, _ := o.Line(s.LineID)
		value = value.Add(line.UnitPrice.Times(s.Quantity))
	}
	return value, nil
}

// FitsSelection reports whether every selected quantity is still unpaid
func (o *Order) FitsSelection(selections []Selection) bool {
	merged, err := o.mergeSelections(selections)
	if err != nil {
		return false
	}
	for _, s := range merged {
		line, _ := o.Line(s.LineID)
		if s.Quantity > line.RemainingQuantity() {
			return false
		}
	}
	return true
}

// OutstandingSelections selects every unpaid quantity of the order
func (o *Order) OutstandingSelections() []Selection {
	selections := make([]Selection, 0, len(o.Lines))
	for i := range o.Lines {
		if qty := o.Lines[i].RemainingQuantity(); qty > 0 {
			selections = append(selections, Selection{LineID: o.Lines[i].ID, Quantity: qty})
		}
	}
	return selections
}

// HasAllocation reports whether a payment holds any line quantity
func (o *Order) HasAllocation(paymentID uuid.UUID) bool {
	return len(o.AllocatedTo(paymentID)) > 0
}

// AllocatedTo returns the quantities currently held by a payment, per line
func (o *Order) AllocatedTo(paymentID uuid.UUID) []Selection {
	var held []Selection
	for i := range o.Lines {
		qty := 0
		for _, a := range o.Lines[i].Allocations {
			if a.PaymentID == paymentID {
				qty += a.Quantity
			}
		}
		if qty > 0 {
			held = append(held, Selection{LineID: o.Lines[i].ID, Quantity: qty})
		}
	}
	return held
}

// AllocatePayment marks the selected line quantities as paid by paymentID.
// Either every selection is applied or none is.
func (o *Order) AllocatePayment(paymentID uuid.UUID, selections []Selection, payer string) error {
	if paymentID == uuid.Nil {
		return shared.NewValidationError("payment id is required")
	}
	if o.HasAllocation(paymentID) {
		return shared.NewValidationError("payment %s is already allocated on order %s", paymentID, o.Number)
	}
	merged, err := o.mergeSelections(selections)
	if err != nil {
		return err
	}
	for _, s := range merged {
		line, _ := o.Line(s.LineID)
		if s.Quantity > line.RemainingQuantity() {
			return shared.NewOverAllocationError("line %s (%s): requested %d, unpaid %d",
				line.ID, line.ProductName, s.Quantity, line.RemainingQuantity())
		}
	}

	before := o.PaymentStatus()
	now := time.Now()
	for _, s := range merged {
		line, _ := o.Line(s.LineID)
		line.Allocations = append(line.Allocations, Allocation{
			PaymentID:   paymentID,
			Quantity:    s.Quantity,
			Payer:       payer,
			AllocatedAt: now,
		})
	}
	o.IncrementVersion()
	o.recordStatusChange(before)
	return nil
}

// ReverseAllocation unmarks every line quantity tied to paymentID.
// Returns false when the payment held nothing (already reversed).
func (o *Order) ReverseAllocation(paymentID uuid.UUID) bool {
	before := o.PaymentStatus()
	changed := false
	for i := range o.Lines {
		kept := o.Lines[i].Allocations[:0]
		for _, a := range o.Lines[i].Allocations {
			if a.PaymentID == paymentID {
				changed = true
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			kept = nil
		}
		o.Lines[i].Allocations = kept
	}
	if !changed {
		return false
	}
	o.IncrementVersion()
	o.recordStatusChange(before)
	return true
}

// ReverseAllocationLines unmarks part of a payment's allocation and returns
// the value released.
func (o *Order) ReverseAllocationLines(paymentID uuid.UUID, selections []Selection) (valueobject.Money, error) {
	merged, err := o.mergeSelections(selections)
	if err != nil {
		return valueobject.Zero, err
	}
	held := make(map[uuid.UUID]int)
	for _, h := range o.AllocatedTo(paymentID) {
		held[h.LineID] = h.Quantity
	}
	for _, s := range merged {
		if s.Quantity > held[s.LineID] {
			return valueobject.Zero, shared.NewValidationError("payment %s holds %d of line %s, cannot release %d",
				paymentID, held[s.LineID], s.LineID, s.Quantity)
		}
	}

	before := o.PaymentStatus()
	released := valueobject.Zero
	for _, s := range merged {
		line, _ := o.Line(s.LineID)
		toRelease := s.Quantity
		// Release newest allocations first
		for j := len(line.Allocations) - 1; j >= 0 && toRelease > 0; j-- {
			a := &line.Allocations[j]
			if a.PaymentID != paymentID {
				continue
			}
			take := min(a.Quantity, toRelease)
			a.Quantity -= take
			toRelease -= take
		}
		kept := line.Allocations[:0]
		for _, a := range line.Allocations {
			if a.Quantity > 0 {
				kept = append(kept, a)
			}
		}
		if len(kept) == 0 {
			kept = nil
		}
		line.Allocations = kept
		released = released.Add(line.UnitPrice.Times(s.Quantity))
	}
	o.IncrementVersion()
	o.recordStatusChange(before)
	return released, nil
}

// DeferToDebt moves part of the remainder onto a debt
func (o *Order) DeferToDebt(debtID uuid.UUID, amount valueobject.Money) error {
	if !amount.IsPositive() {
		return shared.NewValidationError("deferred amount must be positive")
	}
	if amount.GreaterThan(o.Remaining()) {
		return shared.NewValidationError("deferred amount %s exceeds remaining %s", amount, o.Remaining())
	}
	for _, d := range o.Deferrals {
		if d.DebtID == debtID {
			return shared.NewValidationError("debt %s already deferred on order %s", debtID, o.Number)
		}
	}
	before := o.PaymentStatus()
	o.Deferrals = append(o.Deferrals, Deferral{DebtID: debtID, Amount: amount, DeferredAt: time.Now()})
	o.IncrementVersion()
	o.recordStatusChange(before)
	return nil
}

// ReleaseDeferral removes a debt deferral; false if none matched
func (o *Order) ReleaseDeferral(debtID uuid.UUID) bool {
	for i, d := range o.Deferrals {
		if d.DebtID != debtID {
			continue
		}
		before := o.PaymentStatus()
		o.Deferrals = append(o.Deferrals[:i], o.Deferrals[i+1:]...)
		o.IncrementVersion()
		o.recordStatusChange(before)
		return true
	}
	return false
}

func (o *Order) recordStatusChange(before PaymentStatus) {
	after := o.PaymentStatus()
	if after == before {
		return
	}
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, before, after))
	if after == StatusPaid {
		o.AddDomainEvent(NewOrderPaidEvent(o))
	}
}
