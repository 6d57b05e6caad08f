package money

import "testing"

func TestAddOverflow(t *testing.T) {
	_, err := Add(Cents(1<<62), Cents(1<<62))
	if err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestSubOverflow(t *testing.T) {
	_, err := Sub(Cents(-(1<<62)-1), Cents(1<<62))
	if err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	v, err := Add(Cents(500), Cents(250))
	if err != nil || v != 750 {
		t.Fatalf("Add(500,250) = %v, %v; want 750, nil", v, err)
	}
	v, err = Sub(v, Cents(250))
	if err != nil || v != 500 {
		t.Fatalf("Sub(750,250) = %v, %v; want 500, nil", v, err)
	}
}

func TestBpsOfRoundsHalfToEven(t *testing.T) {
	tests := []struct {
		amount Cents
		bps    int64
		want   Cents
	}{
		{amount: 10_000, bps: 100, want: 100},   // 1% of 100.00 = 1.00
		{amount: 1_000_000, bps: 5, want: 500},  // 0.05% of 10000.00
		{amount: 250, bps: 200, want: 5},         // exact: 250*200/10000=5
		{amount: 150, bps: 33, want: 0},          // 150*33/10000 = 0.495 -> rounds to 0
		{amount: 50, bps: 100, want: 0},           // exactly 0.5 rounds to the nearest even integer, 0
	}
	for _, tt := range tests {
		got := BpsOf(tt.amount, tt.bps)
		if got != tt.want {
			t.Errorf("BpsOf(%d,%d) = %d, want %d", tt.amount, tt.bps, got, tt.want)
		}
	}
}

func TestBpsOfZero(t *testing.T) {
	if got := BpsOf(0, 500); got != 0 {
		t.Fatalf("BpsOf(0,500) = %d, want 0", got)
	}
}

func TestSumOverflow(t *testing.T) {
	_, err := Sum([]Cents{1 << 62, 1 << 62, 1})
	if err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestMinMaxAbs(t *testing.T) {
	if Min(3, 5) != 3 || Max(3, 5) != 5 {
		t.Fatal("Min/Max mismatch")
	}
	if Abs(-7) != 7 || Abs(7) != 7 {
		t.Fatal("Abs mismatch")
	}
}
