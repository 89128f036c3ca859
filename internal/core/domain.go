package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type (
	// ConsumptionRecord is one metered consumption entry as returned by
	// GET /consumptions/{year}.
	ConsumptionRecord struct {
		UserID           string  `json:"userId"`
		ConsumptionYear  int     `json:"consumptionYear"`
		ConsumptionMonth int     `json:"consumptionMonth"`
		EnergyTypeID     int     `json:"energyTypeId"`
		EnergyConsumed   float64 `json:"energyConsumed"`
	}

	// TransactionRecord is a certificate transfer between two users.
	TransactionRecord struct {
		FromUserID      string  `json:"fromUserId"`
		ToUserID        string  `json:"toUserId"`
		TokenRef        string  `json:"tokenRef"`
		Price           float64 `json:"price"`
		TransactionDate string  `json:"transactionDate"`
		TransactionID   string  `json:"transactionId"`
	}

	// FieldError reports which field of a record failed validation.
	FieldError struct {
		Field string
		Err   error
	}
)

var (
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidYear   = errors.New("invalid year")
	ErrInvalidEnergy = errors.New("invalid energy amount")
	ErrInvalidPrice  = errors.New("invalid price")
	ErrMissingDate   = errors.New("missing transaction date")
	ErrInvalidDate   = errors.New("invalid transaction date")
)

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Category resolves the record's energy type.
func (c ConsumptionRecord) Category() EnergyType {
	return ResolveCategory(c.EnergyTypeID)
}

func (c ConsumptionRecord) Validate() error {
	if c.ConsumptionMonth < 1 || c.ConsumptionMonth > 12 {
		return &FieldError{Field: "consumptionMonth", Err: ErrInvalidMonth}
	}
	if c.ConsumptionYear < 1 || c.ConsumptionYear > 9999 {
		return &FieldError{Field: "consumptionYear", Err: ErrInvalidYear}
	}
	if !isFinite(c.EnergyConsumed) || c.EnergyConsumed < 0 {
		return &FieldError{Field: "energyConsumed", Err: ErrInvalidEnergy}
	}
	return nil
}

func (t TransactionRecord) Validate() error {
	if !isFinite(t.Price) {
		return &FieldError{Field: "price", Err: ErrInvalidPrice}
	}
	if _, err := t.CalendarDate(); err != nil {
		return &FieldError{Field: "transactionDate", Err: err}
	}
	return nil
}

// transactionLayouts are tried in order. Offsets are kept so the calendar
// date is the one written in the timestamp.
var transactionLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// CalendarDate returns the calendar day of the transaction at UTC midnight.
func (t TransactionRecord) CalendarDate() (time.Time, error) {
	raw := strings.TrimSpace(t.TransactionDate)
	if raw == "" {
		return time.Time{}, ErrMissingDate
	}
	for _, layout := range transactionLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
