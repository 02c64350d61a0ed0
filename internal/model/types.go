package model

import (
	"strings"
	"time"
)

type Verdict string

const (
	VerdictFraud           Verdict = "fraud_detected"
	VerdictClean           Verdict = "no_fraud_detected"
	VerdictInvalid         Verdict = "invalid_transaction"
	VerdictProcessingError Verdict = "processing_error"
)

// Signal flag names, in evaluation order.
const (
	FlagHighAmount       = "high_amount"
	FlagHighVelocity     = "high_velocity"
	FlagHighRiskLocation = "high_risk_location"
	FlagSuspiciousIP     = "suspicious_ip"
	FlagUnusualPattern   = "unusual_pattern"
)

// Required transaction field names, in the order missing fields are reported.
const (
	FieldID        = "id"
	FieldAmount    = "amount"
	FieldUserID    = "user_id"
	FieldTimestamp = "timestamp"
	FieldIPAddress = "ip_address"
	FieldCountry   = "country"
)

var RequiredFields = []string{FieldID, FieldAmount, FieldUserID, FieldTimestamp, FieldIPAddress, FieldCountry}

type Transaction struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ip_address"`
	Country   string    `json:"country"`
}

type TransactionRisk struct {
	Score        float64  `json:"score"`
	Flags        []string `json:"flags"`
	IsFraudulent bool     `json:"is_fraudulent"`
}

// ValidationError reports a malformed or incomplete transaction. It is a
// normal outcome of evaluation, not a fault.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid transaction: " + e.Reason
}

func MissingFieldsError(missing []string) *ValidationError {
	return &ValidationError{Reason: "missing required fields: " + strings.Join(missing, ", ")}
}

type Alert struct {
	EvaluationID  string    `json:"evaluation_id"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Country       string    `json:"country"`
	Timestamp     time.Time `json:"timestamp"`
	Score         float64   `json:"score"`
	Flags         []string  `json:"flags"`
	RaisedAt      time.Time `json:"raised_at"`
}

// AuditRecord is the persisted trace of one evaluation. Amount and IP address
// are never stored.
type AuditRecord struct {
	EvaluationID  string    `json:"evaluation_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	Country       string    `json:"country,omitempty"`
	Verdict       Verdict   `json:"verdict"`
	Score         float64   `json:"score"`
	Flags         []string  `json:"flags"`
	Reason        string    `json:"reason,omitempty"`
	Source        string    `json:"source,omitempty"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}
