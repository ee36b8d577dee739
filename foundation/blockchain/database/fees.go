package database

import (
	"fmt"
	"math/bits"
)

// basisPointsDenominator is the number of basis points in a whole.
const basisPointsDenominator = 10_000

// FeeShares computes the fee owed for a block carrying the specified
// transfer values. The block fee is floor(sum * basisPoints / 10000). Each
// transfer pays the difference between the floored fee of the running sum
// including it and excluding it, so the shares always add up to the block
// fee exactly.
func FeeShares(values []uint64, basisPoints uint16) ([]uint64, uint64, error) {
	if basisPoints > basisPointsDenominator {
		return nil, 0, fmt.Errorf("basis points %d greater than %d", basisPoints, basisPointsDenominator)
	}

	shares := make([]uint64, len(values))

	var sum, prevFee uint64
	for i, value := range values {
		var carry uint64
		sum, carry = bits.Add64(sum, value, 0)
		if carry != 0 {
			return nil, 0, fmt.Errorf("%w: block value overflows", ErrInvalidTransaction)
		}

		fee := floorFee(sum, basisPoints)
		shares[i] = fee - prevFee
		prevFee = fee
	}

	return shares, prevFee, nil
}

// AssignFees sets the fee share on each transaction and returns the block fee.
func AssignFees(trans []BlockTx, basisPoints uint16) ([]BlockTx, uint64, error) {
	values := make([]uint64, len(trans))
	for i, tx := range trans {
		values[i] = tx.Value
	}

	shares, total, err := FeeShares(values, basisPoints)
	if err != nil {
		return nil, 0, err
	}

	out := make([]BlockTx, len(trans))
	for i, tx := range trans {
		tx.Fee = shares[i]
		out[i] = tx
	}

	return out, total, nil
}

// floorFee returns floor(sum * basisPoints / 10000) without overflowing.
func floorFee(sum uint64, basisPoints uint16) uint64 {
	hi, lo := bits.Mul64(sum, uint64(basisPoints))
	quo, _ := bits.Div64(hi, lo, basisPointsDenominator)
	return quo
}
