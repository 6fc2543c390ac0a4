package arbitrage

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/backrunner/dex/uniswap"
)

// sizerPrecision is the mantissa width used for the closed-form evaluation.
// Reserves fit in uint112, so 256 bits keeps the floor exact.
const sizerPrecision = 256

var (
	// ErrNoOpportunity means the spread between the two pools does not cover
	// the round-trip fees. It is not a zero-sized trade.
	ErrNoOpportunity = errors.New("no arbitrage opportunity")

	// ErrInvalidReserves is returned for nil, zero or negative reserves.
	ErrInvalidReserves = errors.New("reserves must be positive")
)

// Reserves holds one pool's reserves in a fixed orientation.
type Reserves struct {
	// Role0 is the reserve of the intermediate asset.
	Role0 *big.Int
	// Role1 is the reserve of the asset routed in and returned at the end.
	Role1 *big.Int
}

func (r Reserves) valid() bool {
	return r.Role0 != nil && r.Role1 != nil && r.Role0.Sign() > 0 && r.Role1.Sign() > 0
}

// FeeFactor is the fraction of an input that survives a swap fee, kept as an
// exact ratio.
type FeeFactor struct {
	Num int64
	Den int64
}

// DefaultFee is the 0.3% Uniswap V2 fee.
var DefaultFee = NewFeeFactor(uniswap.FeeNumerator, uniswap.FeeDenominator)

// NewFeeFactor returns num/den.
func NewFeeFactor(num, den int64) FeeFactor {
	return FeeFactor{Num: num, Den: den}
}

// FeeFromBps converts a fee in basis points to a factor, 30 bps -> 9970/10000.
func FeeFromBps(bps int64) FeeFactor {
	return FeeFactor{Num: 10000 - bps, Den: 10000}
}

// Valid reports whether the factor lies in (0, 1].
func (f FeeFactor) Valid() bool {
	return f.Den > 0 && f.Num > 0 && f.Num <= f.Den
}

func (f FeeFactor) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

func newFloat() *big.Float {
	return new(big.Float).SetPrec(sizerPrecision)
}

// closedForm returns the numerator and denominator of the optimal-input
// expression for routing through a, then b:
//
//	num = sqrt(f² · (a0/a1) · (b1/b0)) − 1
//	den = f/a1 + f² · (a0/a1) / b0
func closedForm(a, b Reserves, fee FeeFactor) (num, den *big.Float) {
	f := newFloat().SetRat(big.NewRat(fee.Num, fee.Den))
	f2 := newFloat().Mul(f, f)

	a0 := newFloat().SetInt(a.Role0)
	a1 := newFloat().SetInt(a.Role1)
	b0 := newFloat().SetInt(b.Role0)
	b1 := newFloat().SetInt(b.Role1)

	priceA := newFloat().Quo(a0, a1)
	priceB := newFloat().Quo(b1, b0)

	radicand := newFloat().Mul(f2, priceA)
	radicand.Mul(radicand, priceB)

	num = newFloat().Sqrt(radicand)
	num.Sub(num, newFloat().SetInt64(1))

	den = newFloat().Quo(f, a1)
	second := newFloat().Mul(f2, priceA)
	second.Quo(second, b0)
	den.Add(den, second)

	return num, den
}

// OptimalInput returns the profit-maximising amount of the role1 asset to
// swap into pool a, whose output is then swapped back through pool b.
// It returns ErrNoOpportunity when no positive trade exists.
func OptimalInput(a, b Reserves, fee FeeFactor) (*big.Int, error) {
	if !a.valid() || !b.valid() {
		return nil, ErrInvalidReserves
	}
	if !fee.Valid() {
		return nil, fmt.Errorf("invalid fee factor %s", fee)
	}

	num, den := closedForm(a, b, fee)
	if num.Sign() <= 0 || den.Sign() <= 0 {
		return nil, ErrNoOpportunity
	}

	// positive quotient, so truncation is the floor
	amount, _ := newFloat().Quo(num, den).Int(nil)
	return amount, nil
}

// ExpectedProfit simulates amountIn through both pools with V2 integer maths
// and returns output minus input. The result may be negative.
func ExpectedProfit(amountIn *big.Int, a, b Reserves, fee FeeFactor) *big.Int {
	intermediate := uniswap.GetAmountOut(amountIn, a.Role1, a.Role0, fee.Num, fee.Den)
	out := uniswap.GetAmountOut(intermediate, b.Role0, b.Role1, fee.Num, fee.Den)
	return new(big.Int).Sub(out, amountIn)
}
