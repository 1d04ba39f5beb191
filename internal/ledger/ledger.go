// Package ledger holds the daily reconciliation arithmetic shared by the
// voucher-stock and wallet-balance pipelines. The two domains differ only in
// their numeric type (integer units vs decimal rupiah), so the rules live
// here once, generic over an Amount.
package ledger

// Amount is the balance numeric type. shopspring/decimal.Decimal satisfies
// it directly; integer stock uses Units.
type Amount[T any] interface {
	Add(T) T
	Sub(T) T
	Sign() int
}

// Units is the integer amount used for voucher stock counts.
type Units int64

func (u Units) Add(v Units) Units { return u + v }
func (u Units) Sub(v Units) Units { return u - v }

func (u Units) Sign() int {
	switch {
	case u > 0:
		return 1
	case u < 0:
		return -1
	}
	return 0
}

// Entry is one reconciled day: Closing = Opening + Inflow - Outflow.
// Closing is the authoritative user input; Outflow is always derived.
type Entry[T Amount[T]] struct {
	Opening T
	Inflow  T
	Outflow T
	Closing T
}

// Patch carries the caller-supplied fields of an update. Nil means "keep
// the stored value".
type Patch[T Amount[T]] struct {
	Opening *T
	Inflow  *T
	Closing *T
}

// Opening resolves the opening balance for the first entry of a day:
// the closing balance of the latest earlier entry, falling back to the
// parent's current snapshot when no history exists.
func Opening[T Amount[T]](prevClosing *T, parentCurrent T) T {
	if prevClosing != nil {
		return *prevClosing
	}
	return parentCurrent
}

// New builds the first entry for a day, solving the outflow from the
// reconciliation law. A negative outflow is stored as-is; it means the
// closing balance exceeds opening+inflow and callers surface it as a
// data-entry warning.
func New[T Amount[T]](opening, inflow, closing T) Entry[T] {
	return Entry[T]{
		Opening: opening,
		Inflow:  inflow,
		Outflow: opening.Add(inflow).Sub(closing),
		Closing: closing,
	}
}

// Apply patches an existing entry and re-solves the dependent field.
//
// Opening correction (Patch.Opening set): the recorded outflow is kept and
// the closing balance is recomputed, so an operator can fix a wrong opening
// without touching what was actually sold.
//
// Default path: the stored opening is preserved (it is never recomputed
// after creation), supplied inflow/closing replace the stored values, and
// the outflow is re-solved.
func Apply[T Amount[T]](e Entry[T], p Patch[T]) Entry[T] {
	inflow := e.Inflow
	if p.Inflow != nil {
		inflow = *p.Inflow
	}

	if p.Opening != nil {
		opening := *p.Opening
		return Entry[T]{
			Opening: opening,
			Inflow:  inflow,
			Outflow: e.Outflow,
			Closing: opening.Add(inflow).Sub(e.Outflow),
		}
	}

	closing := e.Closing
	if p.Closing != nil {
		closing = *p.Closing
	}
	return New(e.Opening, inflow, closing)
}

// Balanced reports whether the entry satisfies the reconciliation law.
func Balanced[T Amount[T]](e Entry[T]) bool {
	return e.Opening.Add(e.Inflow).Sub(e.Outflow).Sub(e.Closing).Sign() == 0
}

// Overdrawn reports whether the derived outflow went negative, i.e. the
// closing balance exceeds opening+inflow.
func Overdrawn[T Amount[T]](e Entry[T]) bool {
	return e.Outflow.Sign() < 0
}
