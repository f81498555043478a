package models

import "time"

// PriceSample is one observation of the UP/DOWN price pair.
// A nil price means the side could not be read.
type PriceSample struct {
	Up         *float64  `json:"up"`
	Down       *float64  `json:"down"`
	ObservedAt time.Time `json:"observed_at"`
}

// Complete reports whether both sides were observed.
func (p PriceSample) Complete() bool {
	return p.Up != nil && p.Down != nil
}

// Fresh reports whether the sample is at most maxAge old at now.
func (p PriceSample) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(p.ObservedAt) <= maxAge
}

// Price returns the observed price for side.
func (p PriceSample) Price(side Side) *float64 {
	if side == SideDown {
		return p.Down
	}
	return p.Up
}

// Decision is a firing tier selected by the rule engine.
type Decision struct {
	Key         TierKey `json:"key"`
	Amount      float64 `json:"amount"`
	TargetPrice float64 `json:"target_price"`
	Price       float64 `json:"price"`
}
