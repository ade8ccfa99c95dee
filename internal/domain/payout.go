package domain

import "github.com/shopspring/decimal"

// ─── Claim Arithmetic ───────────────────────────────────────────────────────
// The payout scalar is asymmetric on purpose: it can shrink the cash payout
// proportionally but never inflate it above the committed amount, while the
// reputation delta scales without a cap. Keep the two paths distinct.

// NetworkFeeDivisor sets the network fee at 1/100th of the cash amount,
// rounded up so the fee collector receives any fractional remainder.
const NetworkFeeDivisor = 100

// ClaimSplit is the breakdown of a committed payout at claim time.
type ClaimSplit struct {
	Cash       int64 // min(payout, payout×scalar), floored
	Fee        int64 // ceil(Cash / NetworkFeeDivisor)
	Net        int64 // Cash − Fee, delivered to the recipient
	Reputation int64 // payout×scalar, floored, uncapped
}

// SplitClaim computes the claim-time breakdown for a committed payout and
// scalar. A zero payout yields an all-zero split.
func SplitClaim(payout int64, scalar decimal.Decimal) ClaimSplit {
	if payout <= 0 {
		return ClaimSplit{}
	}

	scaled := decimal.NewFromInt(payout).Mul(scalar).Floor().IntPart()

	cash := payout
	if scaled < cash {
		cash = scaled
	}

	var fee int64
	if cash > 0 {
		fee = (cash + NetworkFeeDivisor - 1) / NetworkFeeDivisor
	}

	return ClaimSplit{
		Cash:       cash,
		Fee:        fee,
		Net:        cash - fee,
		Reputation: scaled,
	}
}
