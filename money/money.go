// Package money implements SimCash's monetary type: signed integer
// cents. No floating-point arithmetic on money is ever performed —
// rate products are computed with an arbitrary-precision math/big intermediate and
// rounded to nearest even before they touch an accumulator or balance.
package money

import (
	"errors"
	"math"
	"math/big"
)

// Cents is a monetary amount in integer cents. Negative values are
// valid for agent balances (overdraft); transaction amounts must be
// positive.
type Cents int64

// ErrOverflow is returned when a monetary operation would overflow the
// 64-bit signed range. Per this is a fatal engine error.
var ErrOverflow = errors.New("money: integer overflow")

// Add returns a+b, or ErrOverflow if the sum overflows int64.
func Add(a, b Cents) (Cents, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b, or ErrOverflow if the difference overflows int64.
func Sub(a, b Cents) (Cents, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, ErrOverflow
	}
	return diff, nil
}

// MustAdd is Add but panics on overflow. Reserved for call sites that
// have already bounds-checked the operands (e.g. against a known total
// supply) and treat overflow as an engine invariant failure rather
// than a recoverable error.
func MustAdd(a, b Cents) Cents {
	v, err := Add(a, b)
	if err != nil {
		panic(err)
	}
	return v
}

var bpsDivisor = big.NewInt(10_000)

// BpsOf computes amount*bps/10_000, rounded to nearest even (banker's
// rounding). The product is formed in a big.Int intermediate so it
// never overflows regardless of amount/bps magnitude, avoiding a
// hand-rolled 128-bit overflow bug in the rounding step.
func BpsOf(amount Cents, bps int64) Cents {
	product := new(big.Int).Mul(big.NewInt(int64(amount)), big.NewInt(bps))

	quotient, remainder := new(big.Int), new(big.Int)
	quotient.QuoRem(product, bpsDivisor, remainder)

	// QuoRem truncates toward zero; normalize remainder to be
	// non-negative relative to the divisor so the round-half-to-even
	// comparison below is sign-independent.
	absRemainder := new(big.Int).Abs(remainder)
	twice := new(big.Int).Lsh(absRemainder, 1)

	roundAway := twice.Cmp(bpsDivisor) > 0
	roundEven := twice.Cmp(bpsDivisor) == 0 && quotient.Bit(0) == 1
	if roundAway || roundEven {
		if product.Sign() < 0 {
			quotient.Sub(quotient, big.NewInt(1))
		} else {
			quotient.Add(quotient, big.NewInt(1))
		}
	}

	return Cents(quotient.Int64())
}

// Sum adds a slice of Cents, returning ErrOverflow if any partial sum
// overflows.
func Sum(values []Cents) (Cents, error) {
	var total Cents
	var err error
	for _, v := range values {
		total, err = Add(total, v)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Min returns the smaller of a and b.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

// Abs returns the absolute value of v. Panics if v is Cents(math.MinInt64)
// since its absolute value does not fit in Cents — that value can never
// arise from valid SimCash balances (unsecured caps and postings are
// bounds-checked well below that range at config time).
func Abs(v Cents) Cents {
	if v == math.MinInt64 {
		panic(ErrOverflow)
	}
	if v < 0 {
		return -v
	}
	return v
}
