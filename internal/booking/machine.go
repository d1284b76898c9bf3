// Package booking runs the booking dialog: dates, guest count, confirmation
// and the call that creates the reservation.
package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"hostel-agent/internal/domain"
	"hostel-agent/internal/logging"
)

const (
	MinGuests = 1
	MaxGuests = 20
)

var integerRe = regexp.MustCompile(`\d+`)

// PriceCalculator quotes a stay.
type PriceCalculator interface {
	Quote(ctx context.Context, checkIn, checkOut time.Time, guests int) (domain.PriceBreakdown, error)
}

// API is the external booking system.
type API interface {
	CallAPI(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// Machine drives BookingState transitions. It holds no per-conversation state.
type Machine struct {
	prices PriceCalculator
	api    API
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source for booking timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMachine creates a Machine. A nil calculator leaves bookings unpriced.
func NewMachine(prices PriceCalculator, api API, opts ...Option) *Machine {
	m := &Machine{prices: prices, api: api, now: time.Now, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a fresh run with the message that triggered it.
func (m *Machine) Start(ctx context.Context, key string, input string, lang domain.Language) (domain.BookingState, string) {
	return m.Step(ctx, key, domain.BookingState{Stage: domain.StageInquiry}, input, lang)
}

// Step applies one guest message and returns the replacement state and reply.
// Rejected input keeps the stage unchanged.
func (m *Machine) Step(ctx context.Context, key string, state domain.BookingState, input string, lang domain.Language) (domain.BookingState, string) {
	if state.Stage.Terminal() {
		return m.Start(ctx, key, input, lang)
	}
	if hasKeyword(input, cancelWords) {
		return domain.BookingState{Stage: domain.StageCancelled}, textCancelled.Pick(lang)
	}

	switch state.Stage {
	case domain.StageInquiry, "":
		return domain.BookingState{Stage: domain.StageDates}, textAskDates.Pick(lang)
	case domain.StageDates:
		return m.onDates(ctx, state, input, lang)
	case domain.StageGuests:
		return m.onGuests(ctx, state, input, lang)
	case domain.StageConfirm:
		return m.onConfirm(ctx, key, state, input, lang)
	default:
		m.logger.Warn("booking: unknown stage, restarting", "stage", string(state.Stage))
		return domain.BookingState{Stage: domain.StageDates}, textAskDates.Pick(lang)
	}
}

func (m *Machine) onDates(ctx context.Context, state domain.BookingState, input string, lang domain.Language) (domain.BookingState, string) {
	checkIn, checkOut, ok := parseRange(input, m.now())
	if !ok {
		return state.Clone(), textInvalidDates.Pick(lang)
	}
	if !checkOut.After(checkIn) {
		return state.Clone(), textCheckoutBeforeCheckin.Pick(lang)
	}

	next := domain.BookingState{Stage: domain.StageGuests, CheckIn: &checkIn, CheckOut: &checkOut}
	next.Price = m.quote(ctx, checkIn, checkOut, 1)
	nights := int(checkOut.Sub(checkIn).Hours() / 24)
	return next, format(textAskGuests, lang, formatDate(lang, checkIn), formatDate(lang, checkOut), nights)
}

func (m *Machine) onGuests(ctx context.Context, state domain.BookingState, input string, lang domain.Language) (domain.BookingState, string) {
	guests, ok := parseGuests(input)
	if !ok {
		return state.Clone(), textInvalidGuests.Pick(lang)
	}

	next := state.Clone()
	next.Stage = domain.StageConfirm
	next.Guests = guests
	if next.CheckIn != nil && next.CheckOut != nil {
		next.Price = m.quote(ctx, *next.CheckIn, *next.CheckOut, guests)
	}
	return next, m.summary(next, lang)
}

func (m *Machine) onConfirm(ctx context.Context, key string, state domain.BookingState, input string, lang domain.Language) (domain.BookingState, string) {
	if !hasKeyword(input, affirmativeWords) {
		return state.Clone(), textAskConfirm.Pick(lang)
	}
	if m.api == nil {
		m.logger.Error("booking: no booking api configured", "key", key)
		return domain.BookingState{Stage: domain.StageCancelled}, textBookingFailed.Pick(lang)
	}

	raw, err := m.api.CallAPI(ctx, "POST", "/bookings", bookingRequest(key, state))
	if err != nil {
		m.logger.Error("booking: create booking failed", "key", key, "err", err)
		return domain.BookingState{Stage: domain.StageCancelled}, textBookingFailed.Pick(lang)
	}

	done := state.Clone()
	done.Stage = domain.StageDone
	done.Reference = referenceFrom(raw)
	m.logger.Info("booking: confirmed", "key", key, "reference", done.Reference)
	ref := done.Reference
	if ref == "" {
		ref = "-"
	}
	return done, format(textConfirmed, lang, ref)
}

func (m *Machine) quote(ctx context.Context, checkIn, checkOut time.Time, guests int) *domain.PriceBreakdown {
	if m.prices == nil {
		return nil
	}
	p, err := m.prices.Quote(ctx, checkIn, checkOut, guests)
	if err != nil {
		m.logger.Warn("booking: price quote failed", "err", err)
		return nil
	}
	return &p
}

func (m *Machine) summary(s domain.BookingState, lang domain.Language) string {
	var in, out string
	nights := 0
	if s.CheckIn != nil && s.CheckOut != nil {
		in, out = formatDate(lang, *s.CheckIn), formatDate(lang, *s.CheckOut)
		nights = int(s.CheckOut.Sub(*s.CheckIn).Hours() / 24)
	}
	return format(textSummary, lang, in, out, nights, s.Guests, formatMoney(s.Price))
}

// parseGuests takes the first integer in input and requires it in range.
func parseGuests(input string) (int, bool) {
	m := integerRe.FindString(input)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < MinGuests || n > MaxGuests {
		return 0, false
	}
	return n, true
}

type createBooking struct {
	Guest    string  `json:"guest"`
	CheckIn  string  `json:"checkIn"`
	CheckOut string  `json:"checkOut"`
	Guests   int     `json:"guests"`
	Total    float64 `json:"total,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Source   string  `json:"source"`
}

func bookingRequest(key string, s domain.BookingState) createBooking {
	req := createBooking{Guest: key, Guests: s.Guests, Source: "whatsapp"}
	if s.CheckIn != nil {
		req.CheckIn = s.CheckIn.Format("2006-01-02")
	}
	if s.CheckOut != nil {
		req.CheckOut = s.CheckOut.Format("2006-01-02")
	}
	if s.Price != nil {
		req.Total = s.Price.Total
		req.Currency = s.Price.Currency
	}
	return req
}

func referenceFrom(raw json.RawMessage) string {
	var out struct {
		ID        any    `json:"id"`
		Reference string `json:"reference"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &out) != nil {
		return ""
	}
	if out.Reference != "" {
		return out.Reference
	}
	switch v := out.ID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}
