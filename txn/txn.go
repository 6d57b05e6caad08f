// Package txn defines the Transaction type: a payment obligation
// moving between two agents.
package txn

import "github.com/paynet/simcash/ids"

// Status is a transaction's lifecycle state.
type Status string

const (
	StatusPending          Status = "Pending"
	StatusPartiallySettled Status = "PartiallySettled"
	StatusSettled          Status = "Settled"
	StatusOverdue          Status = "Overdue"
	StatusDropped          Status = "Dropped"
)

// Transaction is a single payment obligation. Money fields are integer
// cents; AmountSettled is monotonically non-decreasing over the
// transaction's lifetime.
type Transaction struct {
	ID       ids.TxID
	ParentID ids.TxID // empty unless this transaction was produced by a split

	SenderID   ids.AgentID
	ReceiverID ids.AgentID

	Amount        int64
	AmountSettled int64

	Priority  int // 0..10, higher = more urgent before escalation
	Divisible bool

	ArrivalTick  ids.Tick
	DeadlineTick ids.Tick
	// SettlementTick is set once AmountSettled == Amount (the final,
	// fully-settling tick); it is the zero value until then even if a
	// prior partial settlement already occurred.
	SettlementTick ids.Tick
	SettledAtTick  bool // true iff SettlementTick is meaningful

	Status Status

	// WentOverdueAtTick is set once, on the transition tick, so the
	// cost engine can distinguish the transition from already-overdue
	// ticks when deciding whether to charge the one-time deadline
	// penalty.
	WentOverdueAtTick ids.Tick
	IsOverdue         bool
}

// Remaining returns the unsettled balance of the transaction.
func (t *Transaction) Remaining() int64 {
	return t.Amount - t.AmountSettled
}

// IsTerminal reports whether the transaction has reached a terminal
// status (Settled or Dropped) and will never be mutated again.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusSettled || t.Status == StatusDropped
}

// ApplySettlement records that delta additional cents have settled
// against this transaction at the given tick. SettlementTick is set
// (and SettledAtTick becomes true) the moment the transaction becomes
// fully settled, even if it passed through PartiallySettled earlier in
// its life.
func (t *Transaction) ApplySettlement(delta int64, tick ids.Tick) {
	t.AmountSettled += delta
	if t.AmountSettled >= t.Amount {
		t.Status = StatusSettled
		t.SettlementTick = tick
		t.SettledAtTick = true
	} else if t.AmountSettled > 0 {
		t.Status = StatusPartiallySettled
	}
}
