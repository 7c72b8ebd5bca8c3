package redemption

import (
	"fmt"
	"math/bits"
)

// BasisPointsDenominator is the number of basis points in a whole.
const BasisPointsDenominator = 10_000

// DefaultFeeBasisPoints is a 1% service fee.
const DefaultFeeBasisPoints = 100

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// FeeQuote is the value released by closing a set of accounts and the operator's share.
type FeeQuote struct {
	TotalLamports uint64
	FeeLamports   uint64
	BasisPoints   uint64
}

// FeeCalculator computes the service fee as a fraction of the reclaimed deposits.
type FeeCalculator struct {
	BasisPoints uint64
}

// ComputeFee sums the deposits of records and takes floor(total * bps / 10000).
func (f FeeCalculator) ComputeFee(records []TokenAccountRecord) (FeeQuote, error) {
	if len(records) == 0 {
		return FeeQuote{}, &Error{Kind: KindEmptySelection, Msg: "no accounts selected"}
	}
	if f.BasisPoints > BasisPointsDenominator {
		return FeeQuote{}, fmt.Errorf("fee basis points %d exceeds %d", f.BasisPoints, BasisPointsDenominator)
	}

	var total, carry uint64
	for _, r := range records {
		total, carry = bits.Add64(total, r.RentLamports, 0)
		if carry != 0 {
			return FeeQuote{}, invalidInput("reclaimable total overflows")
		}
	}

	return FeeQuote{
		TotalLamports: total,
		FeeLamports:   feeLamports(total, f.BasisPoints),
		BasisPoints:   f.BasisPoints,
	}, nil
}

// feeLamports truncates toward zero. bps <= 10000 keeps the high word below the divisor.
func feeLamports(total, bps uint64) uint64 {
	hi, lo := bits.Mul64(total, bps)
	q, _ := bits.Div64(hi, lo, BasisPointsDenominator)
	return q
}

// LamportsToSOL converts lamports to SOL for display.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}
