package utils

import (
	"math"

	"rentacar-escrow-backend/internal/domain"
)

// CheckedAdd returns a + b, or ErrArithmeticOverflow if the sum leaves the
// int64 domain. Shared balances must only ever move through the checked
// helpers; wrapping silently would corrupt the custody accounting.
func CheckedAdd(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, domain.ErrArithmeticOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, domain.ErrArithmeticOverflow
	}
	return a + b, nil
}

// CheckedSub returns a - b, or ErrArithmeticOverflow on underflow.
func CheckedSub(a, b int64) (int64, error) {
	if b < 0 && a > math.MaxInt64+b {
		return 0, domain.ErrArithmeticOverflow
	}
	if b > 0 && a < math.MinInt64+b {
		return 0, domain.ErrArithmeticOverflow
	}
	return a - b, nil
}
