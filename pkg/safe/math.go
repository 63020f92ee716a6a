package safe

import (
	"math"
)

// Quantities and prices are fixed-point int64; silent wraparound would
// corrupt position sizing, so every overflow halts the caller.

// SafeAdd performs int64 addition and panics on overflow/underflow.
// Detection is by result sign: adding two same-signed operands can only
// overflow into the opposite sign.
func SafeAdd(a, b int64) int64 {
	s := a + b
	if (a > 0 && b > 0 && s <= 0) || (a < 0 && b < 0 && s >= 0) {
		panic("SAFE_ADD_OVERFLOW")
	}
	return s
}

// SafeSub performs int64 subtraction and panics on overflow/underflow.
// Without overflow, subtracting a negative always grows the value and
// subtracting a positive always shrinks it; a wrapped result breaks
// that ordering.
func SafeSub(a, b int64) int64 {
	d := a - b
	if (b < 0 && d < a) || (b > 0 && d > a) {
		panic("SAFE_SUB_OVERFLOW")
	}
	return d
}

// SafeMul performs int64 multiplication and panics on overflow/underflow.
// The inverse-division check catches every overflow except MinInt64 * -1,
// which is excluded up front.
func SafeMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		panic("SAFE_MUL_OVERFLOW")
	}
	r := a * b
	if r/b != a {
		panic("SAFE_MUL_OVERFLOW")
	}
	return r
}

// SafeDiv performs int64 division and panics on division by zero or on
// the one quotient (MinInt64 / -1) that has no int64 representation.
func SafeDiv(a, b int64) int64 {
	if b == 0 {
		panic("SAFE_DIV_BY_ZERO")
	}
	if a == math.MinInt64 && b == -1 {
		panic("SAFE_DIV_OVERFLOW")
	}
	return a / b
}
