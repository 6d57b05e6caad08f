package agent

import "testing"

func TestUnsecuredCapRemaining(t *testing.T) {
	a := New("bank1", -500, 1000)
	if got := a.UnsecuredCapRemaining(); got != 500 {
		t.Fatalf("want 500, got %d", got)
	}

	a.Balance = -2000
	if got := a.UnsecuredCapRemaining(); got != 0 {
		t.Fatalf("want 0 when balance exceeds cap, got %d", got)
	}
}

func TestAccrueCostMonotonic(t *testing.T) {
	a := New("bank1", 0, 0)
	a.AccrueCost(CostOverdraft, 10)
	a.AccrueCost(CostOverdraft, 5)
	if got := a.AccumulatedCost(CostOverdraft); got != 15 {
		t.Fatalf("want 15, got %d", got)
	}
	if got := a.TotalAccumulatedCosts(); got != 15 {
		t.Fatalf("want total 15, got %d", got)
	}
}

func TestAccrueCostRejectsNegative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on negative accrual")
		}
	}()
	a := New("bank1", 0, 0)
	a.AccrueCost(CostDelay, -1)
}

func TestAllAccumulatedCostsIsSnapshot(t *testing.T) {
	a := New("bank1", 0, 0)
	a.AccrueCost(CostDelay, 7)
	snap := a.AllAccumulatedCosts()
	snap[CostDelay] = 999
	if got := a.AccumulatedCost(CostDelay); got != 7 {
		t.Fatalf("mutating snapshot affected agent state: got %d", got)
	}
}
