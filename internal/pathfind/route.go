package pathfind

import (
	"math"

	"lightning-fee-lab/internal/domain"
)

// Route is the result of a cheapest-path search.
// Price is the amount plus all fees accumulated along Path. FixedFee and
// RelativeFee split those fees into their flat and proportional parts when
// the searcher knows the channel policies; routes reported by a remote node
// carry only Price and leave both at zero.
type Route struct {
	Path        []domain.Node // origin first, destination last; nil when unreachable
	Amount      float64       // amount sent by the origin
	Price       float64       // Amount + fees
	FixedFee    float64       // sum of base fees
	RelativeFee float64       // sum of proportional fees
}

// NoRoute returns the unreachable sentinel for amount.
func NoRoute(amount float64) Route {
	inf := math.Inf(1)
	return Route{
		Amount:      amount,
		Price:       inf,
		FixedFee:    inf,
		RelativeFee: inf,
	}
}

// Reachable reports whether the search reached its destination.
func (r Route) Reachable() bool {
	return r.Path != nil && !math.IsInf(r.Price, 1)
}

// Fee returns the total routing fee (Price - Amount).
func (r Route) Fee() float64 {
	return r.Price - r.Amount
}

// Hops returns the number of channels traversed.
func (r Route) Hops() int {
	if len(r.Path) == 0 {
		return 0
	}
	return len(r.Path) - 1
}
