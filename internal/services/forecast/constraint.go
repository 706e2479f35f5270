package forecast

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Default daily limit band: +7% / -7% off the reference price.
const (
	DefaultUpperFactor = 1.07
	DefaultLowerFactor = 0.93
)

// TickTier applies Tick to prices strictly below Below. A zero Below marks
// the last, unbounded tier.
type TickTier struct {
	Below float64 `yaml:"below" json:"below"`
	Tick  float64 `yaml:"tick" json:"tick"`
}

// TickTable is ordered by ascending Below; tiers are half-open [prev.Below, Below).
type TickTable []TickTier

// DefaultTickTable is the tiered price increment used for listed equities.
var DefaultTickTable = TickTable{
	{Below: 10_000, Tick: 10},
	{Below: 50_000, Tick: 50},
	{Tick: 100},
}

// TickFor returns the increment for price p.
func (t TickTable) TickFor(p float64) float64 {
	for _, tier := range t {
		if tier.Below == 0 || p < tier.Below {
			return tier.Tick
		}
	}
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].Tick
}

// Validate checks ordering and positive increments.
func (t TickTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("tick table is empty")
	}
	prev := math.Inf(-1)
	for i, tier := range t {
		if tier.Tick <= 0 {
			return fmt.Errorf("tick tier %d: tick must be > 0", i)
		}
		if tier.Below == 0 {
			if i != len(t)-1 {
				return fmt.Errorf("tick tier %d: unbounded tier must be last", i)
			}
			continue
		}
		if tier.Below <= prev {
			return fmt.Errorf("tick tier %d: bounds must be ascending", i)
		}
		prev = tier.Below
	}
	return nil
}

// PriceConstraint clamps a prediction into a band around ReferencePrice and
// quantizes it to the tick table. It is fixed for a whole rollout.
type PriceConstraint struct {
	ReferencePrice float64
	UpperFactor    float64
	LowerFactor    float64
	Ticks          TickTable
	// StayInBand steps one tick back toward the band when rounding to the
	// nearest tick lands outside it.
	StayInBand bool
}

// NewPriceConstraint builds a constraint with the default band and tick table.
func NewPriceConstraint(ref float64) PriceConstraint {
	return PriceConstraint{
		ReferencePrice: ref,
		UpperFactor:    DefaultUpperFactor,
		LowerFactor:    DefaultLowerFactor,
		Ticks:          DefaultTickTable,
	}
}

// Validate rejects unusable reference prices and bands.
func (c PriceConstraint) Validate() error {
	if math.IsNaN(c.ReferencePrice) || math.IsInf(c.ReferencePrice, 0) || c.ReferencePrice <= 0 {
		return fmt.Errorf("reference price must be a positive finite number, got %g", c.ReferencePrice)
	}
	if c.LowerFactor <= 0 || c.UpperFactor < c.LowerFactor {
		return fmt.Errorf("invalid band factors lower=%g upper=%g", c.LowerFactor, c.UpperFactor)
	}
	return c.Ticks.Validate()
}

// Bounds returns the clamp band.
func (c PriceConstraint) Bounds() (lower, upper float64) {
	return c.LowerFactor * c.ReferencePrice, c.UpperFactor * c.ReferencePrice
}

// Apply clamps raw into the band, then quantizes. Clamping first keeps a
// boundary prediction from being rounded from outside the band to inside it.
func (c PriceConstraint) Apply(raw float64) float64 {
	lower, upper := c.Bounds()
	clamped := math.Max(lower, math.Min(upper, raw))
	tick := c.Ticks.TickFor(clamped)
	if tick <= 0 {
		return clamped
	}

	t := decimal.NewFromFloat(tick)
	q := decimal.NewFromFloat(clamped).Div(t).Round(0).Mul(t)
	if c.StayInBand {
		if q.GreaterThan(decimal.NewFromFloat(upper)) {
			q = q.Sub(t)
		} else if q.LessThan(decimal.NewFromFloat(lower)) {
			q = q.Add(t)
		}
	}
	out, _ := q.Float64()
	return out
}
