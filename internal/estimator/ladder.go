// Package estimator builds the worst-case, amount-bucketed routing fee model
// used to price payments without running a search per payment.
package estimator

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by ladder construction.
var (
	ErrInvalidLadder = errors.New("invalid estimator ladder")
	ErrNodePool      = errors.New("node pool needs at least two nodes")
)

// Rung is one amount tier of the ladder.
// Fees in a rung are the maximum observed across its samples, so the model is
// an upper bound rather than an average.
type Rung struct {
	Ceiling            float64 // largest amount served by this rung
	FixedFee           float64 // worst-case flat fee
	RelativeFeePerUnit float64 // worst-case proportional fee per unit of amount
	Samples            int     // successful searches behind the rung
	HasData            bool    // false when every sample was unreachable
}

// Estimate returns the rung's fee for amount.
func (r Rung) Estimate(amount float64) float64 {
	return r.FixedFee + r.RelativeFeePerUnit*amount
}

// Ladder is an immutable list of rungs ordered by ceiling.
// It is safe for concurrent use.
type Ladder struct {
	rungs []Rung
}

// DefaultCeilingsSat is the escalating amount sequence 4*10^i sat, i = 1..7.
func DefaultCeilingsSat() []int64 {
	ceilings := make([]int64, 0, 7)
	for i := 1; i <= 7; i++ {
		ceilings = append(ceilings, 4*int64(math.Pow10(i)))
	}
	return ceilings
}

// DefaultCeilingsMsat returns DefaultCeilingsSat converted to millisatoshi.
func DefaultCeilingsMsat() []float64 {
	sats := DefaultCeilingsSat()
	msats := make([]float64, len(sats))
	for i, s := range sats {
		msats[i] = float64(s) * 1000
	}
	return msats
}

// NewLadder validates rungs and returns a monotone ladder.
// Ceilings must be positive and strictly increasing. Fees of populated rungs
// are raised to the running maximum of the rungs below them so that estimates
// never decrease with the amount.
func NewLadder(rungs []Rung) (*Ladder, error) {
	if len(rungs) == 0 {
		return nil, fmt.Errorf("%w: no rungs", ErrInvalidLadder)
	}

	out := make([]Rung, len(rungs))
	copy(out, rungs)

	var maxFixed, maxRelative float64
	for i := range out {
		r := &out[i]
		if r.Ceiling <= 0 || (i > 0 && r.Ceiling <= out[i-1].Ceiling) {
			return nil, fmt.Errorf("%w: ceiling %v out of order", ErrInvalidLadder, r.Ceiling)
		}
		if !r.HasData {
			continue
		}
		if r.FixedFee < 0 || r.RelativeFeePerUnit < 0 {
			return nil, fmt.Errorf("%w: negative fee at ceiling %v", ErrInvalidLadder, r.Ceiling)
		}
		maxFixed = math.Max(maxFixed, r.FixedFee)
		maxRelative = math.Max(maxRelative, r.RelativeFeePerUnit)
		r.FixedFee = maxFixed
		r.RelativeFeePerUnit = maxRelative
	}

	return &Ladder{rungs: out}, nil
}

// Estimate returns the fee for amount from the smallest rung whose ceiling is
// at least amount. ok is false above the top rung or when that rung has no data.
func (l *Ladder) Estimate(amount float64) (fee float64, ok bool) {
	for _, r := range l.rungs {
		if amount <= r.Ceiling {
			if !r.HasData {
				return 0, false
			}
			return r.Estimate(amount), true
		}
	}
	return 0, false
}

// Rungs returns a copy of the ladder rungs.
func (l *Ladder) Rungs() []Rung {
	out := make([]Rung, len(l.rungs))
	copy(out, l.rungs)
	return out
}

// Max returns the largest ceiling of the ladder.
func (l *Ladder) Max() float64 {
	return l.rungs[len(l.rungs)-1].Ceiling
}
