package engine

import (
	"math"
	"strings"

	"txguard/internal/model"
)

// Validate applies the input checks to an already typed transaction. Blank
// strings and a zero timestamp count as missing. It returns nil or a
// *model.ValidationError.
func Validate(tx model.Transaction) error {
	var missing []string
	for _, f := range []struct {
		name    string
		present bool
	}{
		{model.FieldID, strings.TrimSpace(tx.ID) != ""},
		{model.FieldAmount, true},
		{model.FieldUserID, strings.TrimSpace(tx.UserID) != ""},
		{model.FieldTimestamp, !tx.Timestamp.IsZero()},
		{model.FieldIPAddress, strings.TrimSpace(tx.IPAddress) != ""},
		{model.FieldCountry, strings.TrimSpace(tx.Country) != ""},
	} {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return model.MissingFieldsError(missing)
	}
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
		return &model.ValidationError{Reason: "amount must be numeric"}
	}
	if tx.Amount <= 0 {
		return &model.ValidationError{Reason: "amount must be positive"}
	}
	return nil
}
