// Package pricing computes jittered product prices inside a band around the
// product's original price.
package pricing

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// DefaultMaxAttempts bounds how many draws NewPrice makes while looking for a
// price that differs from the current one.
const DefaultMaxAttempts = 100

// MaxFactorLimit is the largest factor a Band may carry.
const MaxFactorLimit = 1000

// ErrInvalidBand is returned for a band that does not satisfy
// 0 <= min_factor <= max_factor <= MaxFactorLimit.
var ErrInvalidBand = errors.New("pricing: invalid price band, expected 0 <= min_factor <= max_factor <= 1000")

// maxCents is the exclusive upper bound for a band endpoint expressed in cents;
// the draw span must stay a positive int64.
var maxCents = decimal.NewFromInt(math.MaxInt64)

// Band holds the multipliers applied to a product's original price.
type Band struct {
	MinFactor float64 `json:"min_factor"`
	MaxFactor float64 `json:"max_factor"`
}

// Validate reports ErrInvalidBand unless 0 <= MinFactor <= MaxFactor <= MaxFactorLimit
// and both are finite.
func (b Band) Validate() error {
	if !isFinite(b.MinFactor) || !isFinite(b.MaxFactor) {
		return ErrInvalidBand
	}
	if b.MinFactor < 0 || b.MinFactor > b.MaxFactor || b.MaxFactor > MaxFactorLimit {
		return ErrInvalidBand
	}
	return nil
}

// RandomSource draws integers uniformly from [0, n). *rand.Rand from math/rand/v2
// satisfies it.
type RandomSource interface {
	Int64N(n int64) int64
}

// runtimeSource uses the runtime's ChaCha8 generator behind the math/rand/v2
// top-level functions, which is safe for concurrent use.
type runtimeSource struct{}

func (runtimeSource) Int64N(n int64) int64 { return rand.Int64N(n) }

// Policy derives new prices. It holds no mutable state of its own, so a single
// Policy can be shared by concurrent callers as long as its RandomSource can.
type Policy struct {
	src         RandomSource
	maxAttempts int
}

// NewPolicy creates a Policy drawing from src. A nil src selects the runtime generator.
func NewPolicy(src RandomSource) *Policy {
	if src == nil {
		src = runtimeSource{}
	}
	return &Policy{src: src, maxAttempts: DefaultMaxAttempts}
}

// Bounds returns the band around original rounded to cents, ordered so low <= high
// and clamped at zero.
func Bounds(original float64, band Band) (low, high decimal.Decimal) {
	base := decimal.NewFromFloat(original)
	low = base.Mul(decimal.NewFromFloat(band.MinFactor)).Round(2)
	high = base.Mul(decimal.NewFromFloat(band.MaxFactor)).Round(2)
	if low.GreaterThan(high) {
		low, high = high, low
	}
	if low.IsNegative() {
		low = decimal.Zero
	}
	if high.IsNegative() {
		high = decimal.Zero
	}
	return low, high
}

// NewPrice computes the next price for a product. ok is false when the product
// must be skipped: a non-positive original price, a band that collapses to a
// single cent value, or a band whose cent values do not fit in an int64.
//
// Candidates are drawn uniformly from the cent values of [low, high], both ends
// included, until one differs from current. If the attempt budget runs out the
// band endpoint opposite current is returned (high when current == low, else low).
func (p *Policy) NewPrice(original, current float64, band Band) (price float64, ok bool) {
	if !isFinite(original) || original <= 0 {
		return 0, false
	}
	if !isFinite(band.MinFactor) || !isFinite(band.MaxFactor) {
		return 0, false
	}

	low, high := Bounds(original, band)
	if low.Equal(high) || high.Shift(2).GreaterThanOrEqual(maxCents) {
		return 0, false
	}

	lowCents := low.Shift(2).IntPart()
	span := high.Shift(2).IntPart() - lowCents + 1
	// A corrupt current price never equals a candidate; any draw is accepted.
	cur := decimal.NewFromInt(-1)
	if isFinite(current) {
		cur = decimal.NewFromFloat(current)
	}

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		candidate := decimal.New(lowCents+p.src.Int64N(span), -2)
		if !candidate.Equal(cur) {
			return candidate.InexactFloat64(), true
		}
	}

	if cur.Equal(low) {
		return high.InexactFloat64(), true
	}
	return low.InexactFloat64(), true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
