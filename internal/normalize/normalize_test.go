package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txguard/internal/model"
)

func validFields() *Fields {
	return &Fields{
		ID:        Str("tx1"),
		Amount:    Str("15000"),
		UserID:    Str("u1"),
		Timestamp: Str("2024-01-01T10:00:00"),
		IPAddress: Str("1.2.3.4"),
		Country:   Str("US"),
	}
}

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr), "expected *model.ValidationError, got %T", err)
	return verr.Reason
}

func TestDecodeValid(t *testing.T) {
	tx, err := Decode(validFields())
	require.NoError(t, err)
	assert.Equal(t, "tx1", tx.ID)
	assert.Equal(t, 15000.0, tx.Amount)
	assert.Equal(t, "u1", tx.UserID)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), tx.Timestamp)
	assert.Equal(t, "1.2.3.4", tx.IPAddress)
	assert.Equal(t, "US", tx.Country)
}

func TestDecodeNilRecord(t *testing.T) {
	_, err := Decode(nil)
	assert.Equal(t, "transaction must be a structured record", reasonOf(t, err))
}

func TestDecodeReportsEveryMissingField(t *testing.T) {
	f := validFields()
	f.Amount = nil
	f.Country = nil
	_, err := Decode(f)
	assert.Equal(t, "missing required fields: amount, country", reasonOf(t, err))
}

func TestDecodeMissingFieldsInFixedOrder(t *testing.T) {
	_, err := Decode(&Fields{})
	assert.Equal(t, "missing required fields: id, amount, user_id, timestamp, ip_address, country", reasonOf(t, err))
}

func TestDecodeBlankCountsAsMissing(t *testing.T) {
	f := validFields()
	f.UserID = Str("  ")
	_, err := Decode(f)
	assert.Equal(t, "missing required fields: user_id", reasonOf(t, err))
}

func TestDecodeMissingCheckedBeforeAmount(t *testing.T) {
	f := validFields()
	f.Amount = Str("not-a-number")
	f.IPAddress = nil
	_, err := Decode(f)
	assert.Equal(t, "missing required fields: ip_address", reasonOf(t, err))
}

func TestDecodeAmount(t *testing.T) {
	tests := []struct {
		amount string
		reason string
	}{
		{"abc", "amount must be numeric"},
		{"true", "amount must be numeric"},
		{"NaN", "amount must be numeric"},
		{"0", "amount must be positive"},
		{"-5.50", "amount must be positive"},
		{"1e400", "amount must be numeric"},
		{"1e-400", "amount must be positive"},
	}
	for _, tt := range tests {
		f := validFields()
		f.Amount = Str(tt.amount)
		_, err := Decode(f)
		assert.Equal(t, tt.reason, reasonOf(t, err), "amount %q", tt.amount)
	}
}

func TestDecodeAmountCheckedBeforeTimestamp(t *testing.T) {
	f := validFields()
	f.Amount = Str("-1")
	f.Timestamp = Str("yesterday")
	_, err := Decode(f)
	assert.Equal(t, "amount must be positive", reasonOf(t, err))
}

func TestDecodeBadTimestampIsFormatError(t *testing.T) {
	f := validFields()
	f.Timestamp = Str("01/02/2024 10:00")
	_, err := Decode(f)
	assert.Contains(t, reasonOf(t, err), "invalid timestamp format")
}

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for _, v := range []string{
		"2024-01-01T10:00:00",
		"2024-01-01T10:00:00Z",
		"2024-01-01T11:00:00+01:00",
		"2024-01-01T11:00:00+0100",
		"2024-01-01 10:00:00",
		"2024-01-01T10:00:00.000",
	} {
		got, err := ParseTimestamp(v)
		require.NoError(t, err, v)
		assert.True(t, want.Equal(got), "%s parsed as %s", v, got)
	}
}

func TestFromTransactionRoundTrip(t *testing.T) {
	tx := model.Transaction{
		ID:        "tx9",
		Amount:    12.5,
		UserID:    "u9",
		Timestamp: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
		IPAddress: "10.0.0.1",
		Country:   "DE",
	}
	got, err := Decode(FromTransaction(tx))
	require.NoError(t, err)
	assert.Equal(t, tx, got)
}

func TestFieldsSet(t *testing.T) {
	f := &Fields{}
	assert.True(t, f.Set(model.FieldCountry, "FR"))
	assert.False(t, f.Set("merchant", "x"))
	v, ok := f.Value(model.FieldCountry)
	assert.True(t, ok)
	assert.Equal(t, "FR", v)
}
