package domain

import "time"

// BookingStage is a state of the booking dialog.
type BookingStage string

const (
	StageInquiry   BookingStage = "inquiry"
	StageDates     BookingStage = "dates"
	StageGuests    BookingStage = "guests"
	StageConfirm   BookingStage = "confirm"
	StageDone      BookingStage = "done"
	StageCancelled BookingStage = "cancelled"
)

// Terminal reports whether the stage ends the current booking run.
func (s BookingStage) Terminal() bool {
	return s == StageDone || s == StageCancelled
}

// PriceBreakdown is a computed quote for a stay.
type PriceBreakdown struct {
	NightlyRate float64 `json:"nightlyRate"`
	Nights      int     `json:"nights"`
	Guests      int     `json:"guests"`
	Subtotal    float64 `json:"subtotal"`
	Deposit     float64 `json:"deposit,omitempty"`
	Total       float64 `json:"total"`
	Currency    string  `json:"currency"`
}

// BookingState is the booking dialog state. It is a value type and is
// replaced wholesale on each transition.
type BookingState struct {
	Stage     BookingStage    `json:"stage"`
	CheckIn   *time.Time      `json:"checkIn,omitempty"`
	CheckOut  *time.Time      `json:"checkOut,omitempty"`
	Guests    int             `json:"guests,omitempty"`
	Price     *PriceBreakdown `json:"price,omitempty"`
	Reference string          `json:"reference,omitempty"`
}

// Clone returns a copy that shares no pointers with b.
func (b BookingState) Clone() BookingState {
	c := b
	if b.CheckIn != nil {
		t := *b.CheckIn
		c.CheckIn = &t
	}
	if b.CheckOut != nil {
		t := *b.CheckOut
		c.CheckOut = &t
	}
	if b.Price != nil {
		p := *b.Price
		c.Price = &p
	}
	return c
}
