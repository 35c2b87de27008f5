// Package evaluator prices individual payments against the routing network,
// sharing search work across payments of similar size through a bucketed
// per-unit fee cache.
package evaluator

import (
	"errors"
	"fmt"
	"math"
)

// DefaultPrecision is the default log-space grid granularity.
const DefaultPrecision = 0.05

// ErrInvalidPrecision is returned for a grid precision outside (0, 1).
var ErrInvalidPrecision = errors.New("grid precision must be in (0, 1)")

// Bucket is the index of an amount on the log-space grid.
type Bucket int64

// Grid rounds amounts onto the points (1+precision)^k.
//
// An amount and its grid point are within a factor of sqrt(1+precision) of
// each other, so a per-unit fee measured at the grid point and scaled back to
// the amount differs from the grid point fee by at most MaxRelativeError.
type Grid struct {
	precision float64
	logStep   float64
}

// NewGrid creates a grid with the given precision.
func NewGrid(precision float64) (Grid, error) {
	if math.IsNaN(precision) || precision <= 0 || precision >= 1 {
		return Grid{}, fmt.Errorf("%w: got %v", ErrInvalidPrecision, precision)
	}
	return Grid{precision: precision, logStep: math.Log1p(precision)}, nil
}

// Precision returns the grid granularity.
func (g Grid) Precision() float64 {
	return g.precision
}

// Normalize returns the bucket nearest to amount in log space.
// amount must be positive.
func (g Grid) Normalize(amount float64) Bucket {
	return Bucket(math.Round(math.Log(amount) / g.logStep))
}

// Amount returns the grid point of bucket b.
func (g Grid) Amount(b Bucket) float64 {
	return math.Exp(float64(b) * g.logStep)
}

// MaxRelativeError is the largest relative distance between an amount and
// the grid point it normalizes to.
func (g Grid) MaxRelativeError() float64 {
	return math.Sqrt(1+g.precision) - 1
}
