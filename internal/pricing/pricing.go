// Package pricing quotes stays from configured nightly rates.
package pricing

import (
	"context"
	"errors"
	"math"
	"time"

	"hostel-agent/internal/domain"
)

// Config holds the rate card.
type Config struct {
	NightlyRate float64 `koanf:"nightly_rate"`
	WeekendRate float64 `koanf:"weekend_rate"` // Friday and Saturday nights; 0 uses NightlyRate
	DepositRate float64 `koanf:"deposit_rate"` // fraction of the total, e.g. 0.3
	Currency    string  `koanf:"currency"`
}

// Calculator quotes stays per guest per night.
type Calculator struct {
	cfg Config
}

// New validates cfg and returns a Calculator.
func New(cfg Config) (*Calculator, error) {
	if cfg.NightlyRate <= 0 {
		return nil, errors.New("pricing: nightly rate must be positive")
	}
	if cfg.DepositRate < 0 || cfg.DepositRate > 1 {
		return nil, errors.New("pricing: deposit rate must be within [0,1]")
	}
	if cfg.Currency == "" {
		cfg.Currency = "MYR"
	}
	return &Calculator{cfg: cfg}, nil
}

// Quote prices the nights in [checkIn, checkOut) for guests.
func (c *Calculator) Quote(_ context.Context, checkIn, checkOut time.Time, guests int) (domain.PriceBreakdown, error) {
	if !checkOut.After(checkIn) {
		return domain.PriceBreakdown{}, errors.New("pricing: checkout must be after check-in")
	}
	if guests < 1 {
		return domain.PriceBreakdown{}, errors.New("pricing: at least one guest is required")
	}

	nights := 0
	perGuest := 0.0
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		nights++
		perGuest += c.rateFor(d)
	}

	subtotal := round2(perGuest * float64(guests))
	return domain.PriceBreakdown{
		NightlyRate: c.cfg.NightlyRate,
		Nights:      nights,
		Guests:      guests,
		Subtotal:    subtotal,
		Deposit:     round2(subtotal * c.cfg.DepositRate),
		Total:       subtotal,
		Currency:    c.cfg.Currency,
	}, nil
}

func (c *Calculator) rateFor(night time.Time) float64 {
	if c.cfg.WeekendRate > 0 && (night.Weekday() == time.Friday || night.Weekday() == time.Saturday) {
		return c.cfg.WeekendRate
	}
	return c.cfg.NightlyRate
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
