package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"txguard/internal/config"
	"txguard/internal/logging"
	"txguard/internal/metrics"
	"txguard/internal/model"
	"txguard/internal/normalize"
	"txguard/internal/traces"
)

// ProcessingErrorReason is returned for faults that are not validation errors.
const ProcessingErrorReason = "error during fraud detection"

// Result is the outcome of one evaluation. Risk is set only for scored
// transactions (fraud_detected or no_fraud_detected).
type Result struct {
	EvaluationID string
	Verdict      model.Verdict
	Transaction  model.Transaction
	Risk         *model.TransactionRisk
	Reason       string
	Err          error
	EvaluatedAt  time.Time
}

func (r Result) Scored() bool {
	return r.Risk != nil
}

// settings is the immutable detection snapshot read by each evaluation.
type settings struct {
	amountThreshold   float64
	velocityThreshold int
	velocityWindow    time.Duration
	zScoreThreshold   float64
	fraudThreshold    float64
	weights           config.WeightsConfig
	retention         Retention

	configured *RiskLists
	external   *RiskLists
	lists      *RiskLists
}

type Engine struct {
	logger   *slog.Logger
	settings atomic.Value
	// mu serializes settings writers; evaluations never take it.
	mu        sync.Mutex
	retention Retention
	users     sync.Map
	tracked   atomic.Int64
}

type Option func(*Engine)

func WithRetention(r Retention) Option {
	return func(e *Engine) { e.retention = r }
}

func NewEngine(cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	e.settings.Store(e.buildSettings(cfg, nil))
	return e
}

// UpdateConfig swaps in new detection parameters. Lists supplied through
// UpdateLists are kept.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.Store(e.buildSettings(cfg, e.current().external))
}

// UpdateLists replaces the externally sourced suspicious IPs and high-risk
// countries. They are matched in addition to the configured lists.
func (e *Engine) UpdateLists(ips, countries []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := *e.current()
	next.external = NewRiskLists(countries, ips)
	next.lists = next.configured.Union(next.external)
	e.settings.Store(&next)
}

// Lists returns the lists currently in effect.
func (e *Engine) Lists() *RiskLists {
	return e.current().lists
}

func (e *Engine) buildSettings(cfg *config.Config, external *RiskLists) *settings {
	det := cfg.Detection
	s := &settings{
		amountThreshold:   det.AmountThreshold,
		velocityThreshold: det.VelocityThreshold,
		velocityWindow:    det.VelocityWindow,
		zScoreThreshold:   det.ZScoreThreshold,
		fraudThreshold:    det.FraudThreshold,
		weights:           det.Weights,
		retention:         e.retention,
		configured:        NewRiskLists(det.HighRiskCountries, det.SuspiciousIPs),
		external:          external,
	}
	if s.retention == nil {
		s.retention = retentionFor(cfg.History.Retention)
	}
	s.lists = s.configured.Union(external)
	return s
}

func (e *Engine) current() *settings {
	return e.settings.Load().(*settings)
}

// Evaluate scores a typed transaction.
func (e *Engine) Evaluate(ctx context.Context, tx model.Transaction) Result {
	return e.run(ctx, "", txAttrs(tx), func() (model.Transaction, error) {
		return tx, Validate(tx)
	})
}

// EvaluateFields decodes and scores a transaction from an untyped source.
func (e *Engine) EvaluateFields(ctx context.Context, f *normalize.Fields) Result {
	var source string
	if f != nil {
		source = f.Source
	}
	return e.run(ctx, source, fieldAttrs(f), func() (model.Transaction, error) {
		return normalize.Decode(f)
	})
}

func (e *Engine) run(ctx context.Context, source string, attrs []any, decode func() (model.Transaction, error)) (res Result) {
	start := time.Now()
	res = Result{EvaluationID: uuid.NewString(), EvaluatedAt: start.UTC()}
	_, span := traces.StartSpan(ctx, "engine.evaluate")
	if source != "" {
		span.SetAttributes(traces.Source(source))
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			e.logger.Error(ProcessingErrorReason,
				append(attrs, "error", err, "stack", string(debug.Stack()))...)
			res.Verdict = model.VerdictProcessingError
			res.Risk = nil
			res.Reason = ProcessingErrorReason
			res.Err = err
			span.RecordError(err)
		}
		metrics.EvaluationsTotal.WithLabelValues(string(res.Verdict)).Inc()
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(traces.Verdict(string(res.Verdict)))
		span.End()
	}()

	tx, err := decode()
	if err != nil {
		res.Verdict = model.VerdictInvalid
		res.Reason = reasonOf(err)
		res.Err = err
		e.logger.Warn("invalid transaction", append(attrs, "reason", res.Reason)...)
		return res
	}
	res.Transaction = tx
	attrs = txAttrs(tx)
	span.SetAttributes(traces.TransactionID(tx.ID))

	s := e.current()
	risk := e.scoreAndRecord(tx, s)
	res.Risk = &risk

	for _, flag := range risk.Flags {
		metrics.SignalsTotal.WithLabelValues(flag).Inc()
		e.logger.Info("risk signal triggered", append(attrs, "flag", flag)...)
	}
	metrics.RiskScore.Observe(risk.Score)
	span.SetAttributes(traces.Score(risk.Score))

	if risk.IsFraudulent {
		res.Verdict = model.VerdictFraud
		e.logger.Warn("fraud detected", append(attrs, "score", risk.Score, "flags", risk.Flags)...)
	} else {
		res.Verdict = model.VerdictClean
		e.logger.Info("no fraud detected", append(attrs, "score", risk.Score, "flags", risk.Flags)...)
	}
	return res
}

// scoreAndRecord computes risk from the user's prior history and appends tx,
// both under the user's lock.
func (e *Engine) scoreAndRecord(tx model.Transaction, s *settings) model.TransactionRisk {
	h := e.history(tx.UserID)
	h.mu.Lock()
	defer h.mu.Unlock()

	risk := computeRisk(tx, h.entries, s)
	// Assigned only once retention returns, so a fault leaves history as it was.
	next := s.retention.Retain(append(h.entries, tx), tx.Timestamp)
	h.entries = next
	return risk
}

func (e *Engine) history(userID string) *userHistory {
	if v, ok := e.users.Load(userID); ok {
		return v.(*userHistory)
	}
	v, loaded := e.users.LoadOrStore(userID, &userHistory{})
	if !loaded {
		metrics.TrackedUsers.Set(float64(e.tracked.Add(1)))
	}
	return v.(*userHistory)
}

// History returns a copy of a user's recorded transactions.
func (e *Engine) History(userID string) []model.Transaction {
	v, ok := e.users.Load(userID)
	if !ok {
		return nil
	}
	h := v.(*userHistory)
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.Transaction, len(h.entries))
	copy(out, h.entries)
	return out
}

func (e *Engine) TrackedUsers() int {
	return int(e.tracked.Load())
}

// Reset discards all history.
func (e *Engine) Reset() {
	e.users.Range(func(key, _ any) bool {
		e.users.Delete(key)
		return true
	})
	e.tracked.Store(0)
	metrics.TrackedUsers.Set(0)
}

func reasonOf(err error) string {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return err.Error()
}

// txAttrs are the only transaction attributes that may be logged.
func txAttrs(tx model.Transaction) []any {
	return []any{
		"tx_id", tx.ID,
		"timestamp", tx.Timestamp.Format(time.RFC3339Nano),
		"country", tx.Country,
	}
}

func fieldAttrs(f *normalize.Fields) []any {
	if f == nil {
		return nil
	}
	var attrs []any
	for _, name := range []string{model.FieldID, model.FieldTimestamp, model.FieldCountry} {
		if v, ok := f.Value(name); ok {
			key := name
			if name == model.FieldID {
				key = "tx_id"
			}
			attrs = append(attrs, key, v)
		}
	}
	if f.Source != "" {
		attrs = append(attrs, "source", f.Source)
	}
	return attrs
}
