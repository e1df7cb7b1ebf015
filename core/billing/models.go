package billing

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/malipo/core"
)

// DefaultCurrencyCode is assumed for subscriptions that carry no currency code.
const DefaultCurrencyCode = "RUB"

// Subscription statuses
const (
	SubscriptionActive    = "active"
	SubscriptionPaused    = "paused"
	SubscriptionCompleted = "completed"
	SubscriptionCancelled = "cancelled"
)

// Session statuses
const (
	SessionScheduled = "scheduled"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
	SessionAbsent    = "absent"
)

var (
	// errors
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCurrencyNotFound     = errors.New("currency not found")
	ErrNoDefaultCurrency    = errors.New("no default currency configured")
	ErrBadExchangeRate      = errors.New("exchange rate must be greater than 0")

	SubscriptionStatuses = []string{SubscriptionActive, SubscriptionPaused, SubscriptionCompleted, SubscriptionCancelled}
	SessionStatuses      = []string{SessionScheduled, SessionCompleted, SessionCancelled, SessionAbsent}
)

// Weekday is a time.Weekday that marshals as its English name ("Monday")
// and unmarshals from either a name or a 0-6 number (0 = Sunday).
type Weekday time.Weekday

func (d Weekday) Weekday() time.Weekday { return time.Weekday(d) }
func (d Weekday) String() string        { return time.Weekday(d).String() }

func (d Weekday) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Weekday) UnmarshalJSON(data []byte) error {
	if n, err := strconv.Atoi(string(data)); err == nil {
		if n < 0 || n > 6 {
			return fmt.Errorf("invalid weekday %d", n)
		}
		*d = Weekday(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	day, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = day
	return nil
}

func ParseWeekday(s string) (Weekday, error) {
	name := core.CleanString(s, true /* lower */)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return Weekday(d), nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

type (
	// ScheduleSlot is one recurring weekly slot of a subscription.
	ScheduleSlot struct {
		Day  Weekday `json:"day"`
		Time string  `json:"time,omitempty"` // "15:04", optional
	}

	// Schedule is stored as a JSONB column.
	Schedule []ScheduleSlot

	Subscription struct {
		ID           string    `json:"id" db:"id"`
		SchoolID     string    `json:"school_id" db:"school_id"`
		StudentID    string    `json:"student_id" db:"student_id"`
		Schedule     Schedule  `json:"schedule" db:"schedule"`
		TotalPrice   float64   `json:"total_price" db:"total_price"`
		CurrencyCode string    `json:"currency_code" db:"currency_code"`
		Status       string    `json:"status" db:"status"`
		CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
		UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
	}

	Session struct {
		ID             string    `json:"id" db:"id"`
		SubscriptionID string    `json:"subscription_id" db:"subscription_id"`
		SchoolID       string    `json:"school_id" db:"school_id"`
		ScheduledDate  null.Time `json:"scheduled_date" db:"scheduled_date"` // invalid = unparsable source date
		Status         string    `json:"status" db:"status"`
		CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
	}

	Currency struct {
		ID           string    `json:"id" db:"id"`
		SchoolID     string    `json:"school_id" db:"school_id"`
		Code         string    `json:"code" db:"code"`
		Symbol       string    `json:"symbol" db:"symbol"`
		ExchangeRate float64   `json:"exchange_rate" db:"exchange_rate"` // units per 1 default currency unit
		IsDefault    bool      `json:"is_default" db:"is_default"`
		CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
		UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
	}

	// ExpectedPayment is computed on demand, never persisted.
	ExpectedPayment struct {
		SubscriptionID    string    `json:"subscription_id"`
		StudentID         string    `json:"student_id"`
		StudentName       string    `json:"student_name,omitempty"`
		NextPaymentDate   time.Time `json:"next_payment_date"`
		NextPaymentAmount float64   `json:"next_payment_amount"`
		CurrencyCode      string    `json:"currency_code"`
		CurrencySymbol    string    `json:"currency_symbol,omitempty"`
		LastSessionDate   null.Time `json:"last_session_date"` // invalid = no sessions yet
	}
)

func (s Subscription) IsActive() bool { return s.Status == SubscriptionActive }

func (s Schedule) Value() (driver.Value, error) {
	if s == nil {
		s = Schedule{}
	}
	return json.Marshal(s)
}

func (s *Schedule) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return fmt.Errorf("unsupported Schedule source %T", src)
}

// SymbolFor returns the display glyph for known currency codes; "$" otherwise.
func SymbolFor(code string) string {
	switch strings.ToUpper(code) {
	case "RUB":
		return "₽"
	case "EUR":
		return "€"
	default:
		return "$"
	}
}

// RoundAmount rounds to 2 decimal places for display. Convert itself never rounds.
func RoundAmount(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// NewSubscription contains information needed to create a new Subscription.
// Legacy clients send camelCase field names; both conventions are accepted
// and normalized here, at the boundary.
type NewSubscription struct {
	SchoolID     string   `json:"school_id" validate:"required"`
	StudentID    string   `json:"student_id" validate:"required"`
	Schedule     Schedule `json:"schedule" validate:"dive"`
	TotalPrice   float64  `json:"total_price" validate:"gte=0"`
	CurrencyCode string   `json:"currency_code" validate:"omitempty,currencycode"`
	Status       string   `json:"status" validate:"omitempty,subscriptionstatus"`
}

func (ns *NewSubscription) UnmarshalJSON(data []byte) error {
	type alias NewSubscription
	normalized, err := normalizeJSONKeys(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, (*alias)(ns))
}

func (ns *NewSubscription) Validate(validate *validator.Validate) error {
	ns.CurrencyCode = strings.ToUpper(core.CleanString(ns.CurrencyCode))
	if ns.CurrencyCode == "" {
		ns.CurrencyCode = DefaultCurrencyCode
	}
	if ns.Status == "" {
		ns.Status = SubscriptionActive
	}
	return validate.Struct(ns)
}

// NewSession contains information needed to record a Session.
type NewSession struct {
	SubscriptionID string `json:"subscription_id" validate:"required"`
	SchoolID       string `json:"school_id" validate:"required"`
	ScheduledDate  string `json:"scheduled_date"` // RFC3339 or "2006-01-02"; unparsable is kept as a null date
	Status         string `json:"status" validate:"omitempty,sessionstatus"`
}

func (ns *NewSession) UnmarshalJSON(data []byte) error {
	type alias NewSession
	normalized, err := normalizeJSONKeys(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, (*alias)(ns))
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	if ns.Status == "" {
		ns.Status = SessionScheduled
	}
	return validate.Struct(ns)
}

// ParsedDate parses ScheduledDate in the given zone; an unparsable value
// yields an invalid (null) time, never an error.
func (ns NewSession) ParsedDate(loc *time.Location) null.Time {
	raw := core.CleanString(ns.ScheduledDate)
	if raw == "" {
		return null.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return null.TimeFrom(t)
		}
	}
	return null.Time{}
}

// NewCurrency contains information needed to create a new Currency.
type NewCurrency struct {
	SchoolID     string  `json:"school_id" validate:"required"`
	Code         string  `json:"code" validate:"required,currencycode"`
	Symbol       string  `json:"symbol"`
	ExchangeRate float64 `json:"exchange_rate" validate:"required_without=IsDefault,omitempty,gt=0"`
	IsDefault    bool    `json:"is_default"`
}

func (nc *NewCurrency) UnmarshalJSON(data []byte) error {
	type alias NewCurrency
	normalized, err := normalizeJSONKeys(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, (*alias)(nc))
}

func (nc *NewCurrency) Validate(validate *validator.Validate) error {
	nc.Code = strings.ToUpper(core.CleanString(nc.Code))
	if nc.Symbol == "" {
		nc.Symbol = SymbolFor(nc.Code)
	}
	if nc.IsDefault {
		nc.ExchangeRate = 1
	}
	return validate.Struct(nc)
}

// normalizeJSONKeys rewrites top-level camelCase object keys to snake_case so
// payloads from either legacy backend land on one internal shape.
func normalizeJSONKeys(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return data, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	normalized := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		normalized[camelToSnake(k)] = v
	}
	return json.Marshal(normalized)
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
