package normalize

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"txguard/internal/model"
)

// Fields is a transaction as received from an untyped source. A nil pointer
// means the field was absent; a blank value is treated the same way.
type Fields struct {
	ID        *string
	Amount    *string
	UserID    *string
	Timestamp *string
	IPAddress *string
	Country   *string
	Source    string
	Raw       string
}

// Str returns a pointer to v, for building Fields by hand.
func Str(v string) *string {
	return &v
}

// FromTransaction renders a typed transaction as Fields.
func FromTransaction(tx model.Transaction) *Fields {
	return &Fields{
		ID:        Str(tx.ID),
		Amount:    Str(decimal.NewFromFloat(tx.Amount).String()),
		UserID:    Str(tx.UserID),
		Timestamp: Str(tx.Timestamp.UTC().Format(time.RFC3339Nano)),
		IPAddress: Str(tx.IPAddress),
		Country:   Str(tx.Country),
	}
}

// Value returns the raw value of a named field and whether it was present.
func (f *Fields) Value(name string) (string, bool) {
	var p *string
	switch name {
	case model.FieldID:
		p = f.ID
	case model.FieldAmount:
		p = f.Amount
	case model.FieldUserID:
		p = f.UserID
	case model.FieldTimestamp:
		p = f.Timestamp
	case model.FieldIPAddress:
		p = f.IPAddress
	case model.FieldCountry:
		p = f.Country
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

// Set assigns a field by name. Unknown names are ignored.
func (f *Fields) Set(name, value string) bool {
	v := value
	switch name {
	case model.FieldID:
		f.ID = &v
	case model.FieldAmount:
		f.Amount = &v
	case model.FieldUserID:
		f.UserID = &v
	case model.FieldTimestamp:
		f.Timestamp = &v
	case model.FieldIPAddress:
		f.IPAddress = &v
	case model.FieldCountry:
		f.Country = &v
	default:
		return false
	}
	return true
}

// Decode validates raw fields and converts them to a Transaction. Checks run in
// order and stop at the first failure: record present, required fields
// present, amount numeric and positive, timestamp parseable. The returned
// error is always a *model.ValidationError.
func Decode(f *Fields) (model.Transaction, error) {
	if f == nil {
		return model.Transaction{}, &model.ValidationError{Reason: "transaction must be a structured record"}
	}
	var missing []string
	for _, name := range model.RequiredFields {
		if v, ok := f.Value(name); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return model.Transaction{}, model.MissingFieldsError(missing)
	}

	amount, err := ParseAmount(*f.Amount)
	if err != nil {
		return model.Transaction{}, &model.ValidationError{Reason: err.Error()}
	}
	ts, err := ParseTimestamp(*f.Timestamp)
	if err != nil {
		return model.Transaction{}, &model.ValidationError{Reason: "invalid timestamp format: " + err.Error()}
	}

	return model.Transaction{
		ID:        strings.TrimSpace(*f.ID),
		Amount:    amount,
		UserID:    strings.TrimSpace(*f.UserID),
		Timestamp: ts,
		IPAddress: strings.TrimSpace(*f.IPAddress),
		Country:   strings.TrimSpace(*f.Country),
	}, nil
}

func ParseAmount(value string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.New("amount must be numeric")
	}
	if !d.IsPositive() {
		return 0, errors.New("amount must be positive")
	}
	// Out-of-range exponents overflow to Inf or underflow to zero.
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errors.New("amount must be numeric")
	}
	if f <= 0 {
		return 0, errors.New("amount must be positive")
	}
	return f, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses ISO-8601 date-times. Values without a zone offset are
// taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", value)
}
