// Package scoring classifies and scores expanded candidates.
package scoring

import "fmt"

// Config holds the deal thresholds and score weights.
type Config struct {
	Tolerance               float64 `yaml:"tolerance"`
	MinSimilarDates         int     `yaml:"minSimilarDates"`
	MinDiscountPct          float64 `yaml:"minDiscountPct"`
	FeaturedMinSimilarDates int     `yaml:"featuredMinSimilarDates"`
	FeaturedMinDiscountPct  float64 `yaml:"featuredMinDiscountPct"`
	DiscountWeight          float64 `yaml:"discountWeight"`
	FlexibilityWeight       float64 `yaml:"flexibilityWeight"`
	MinDealsForBundle       int     `yaml:"minDealsForBundle"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Tolerance:               0.15,
		MinSimilarDates:         5,
		MinDiscountPct:          0.20,
		FeaturedMinSimilarDates: 10,
		FeaturedMinDiscountPct:  0.25,
		DiscountWeight:          0.5,
		FlexibilityWeight:       0.5,
		MinDealsForBundle:       3,
	}
}

// Validate ensures thresholds and weights are coherent.
func (c Config) Validate() error {
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance cannot be negative")
	}
	if c.MinSimilarDates < 0 || c.FeaturedMinSimilarDates < 0 {
		return fmt.Errorf("similar date thresholds cannot be negative")
	}
	if c.MinDiscountPct < 0 || c.MinDiscountPct > 1 {
		return fmt.Errorf("min discount pct must be within [0, 1]")
	}
	if c.FeaturedMinDiscountPct < 0 || c.FeaturedMinDiscountPct > 1 {
		return fmt.Errorf("featured min discount pct must be within [0, 1]")
	}
	if c.FeaturedMinSimilarDates < c.MinSimilarDates {
		return fmt.Errorf("featured similar dates (%d) cannot be below the valid threshold (%d)", c.FeaturedMinSimilarDates, c.MinSimilarDates)
	}
	if c.FeaturedMinDiscountPct < c.MinDiscountPct {
		return fmt.Errorf("featured discount pct (%.2f) cannot be below the valid threshold (%.2f)", c.FeaturedMinDiscountPct, c.MinDiscountPct)
	}
	if c.DiscountWeight < 0 || c.FlexibilityWeight < 0 {
		return fmt.Errorf("score weights cannot be negative")
	}
	if c.DiscountWeight+c.FlexibilityWeight == 0 {
		return fmt.Errorf("score weights cannot both be zero")
	}
	if c.MinDealsForBundle < 1 {
		return fmt.Errorf("min deals for bundle must be positive")
	}
	return nil
}
