// Package pricing converts tutor rates into session prices and platform fees.
package pricing

import "github.com/shopspring/decimal"

const DefaultPlatformFeePercent = 20

var allowedDurations = map[int]bool{60: true, 90: true, 120: true, 180: true}

func ValidDuration(minutes int) bool {
	return allowedDurations[minutes]
}

type Quote struct {
	AmountPerSession int64
	SessionCount     int
	TotalAmount      int64
	PlatformFee      int64
}

var (
	sixty   = decimal.NewFromInt(60)
	hundred = decimal.NewFromInt(100)
)

// Calculate prices sessionCount sessions of durationMinutes at hourlyRate.
// The per-session amount is rounded half away from zero before it is
// multiplied, and the fee is floored so it never exceeds the total.
func Calculate(hourlyRate int64, durationMinutes, sessionCount int, feePercent int64) Quote {
	perSession := decimal.NewFromInt(hourlyRate).
		Mul(decimal.NewFromInt(int64(durationMinutes))).
		Div(sixty).
		Round(0).
		IntPart()

	total := perSession * int64(sessionCount)
	fee := decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(feePercent)).
		Div(hundred).
		Floor().
		IntPart()

	return Quote{
		AmountPerSession: perSession,
		SessionCount:     sessionCount,
		TotalAmount:      total,
		PlatformFee:      fee,
	}
}

// SplitFee spreads the quote's fee over its sessions. The first fee%n
// sessions carry one extra unit so the shares always sum to the fee.
func (q Quote) SplitFee() []int64 {
	n := int64(q.SessionCount)
	if n <= 0 {
		return nil
	}
	base, rem := q.PlatformFee/n, q.PlatformFee%n
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < rem {
			shares[i]++
		}
	}
	return shares
}
