package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"txguard/internal/alerts"
	"txguard/internal/engine"
	"txguard/internal/metrics"
	"txguard/internal/model"
	"txguard/internal/normalize"
	"txguard/internal/storage"
)

// Publisher forwards scored verdicts downstream.
type Publisher interface {
	Publish(ctx context.Context, res engine.Result) error
}

// Processor evaluates one transaction and fans the result out to the alert
// ring, the audit store and the publisher. Sink failures are logged and
// counted; they never change the verdict.
type Processor struct {
	engine    *engine.Engine
	alerts    *alerts.Store
	store     storage.Store
	publisher Publisher
	logger    *slog.Logger
}

// NewProcessor wires the sinks. Any of alertsStore, store and publisher may be nil.
func NewProcessor(eng *engine.Engine, alertsStore *alerts.Store, store storage.Store, publisher Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		engine:    eng,
		alerts:    alertsStore,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (p *Processor) Process(ctx context.Context, f *normalize.Fields) engine.Result {
	res := p.engine.EvaluateFields(ctx, f)

	if res.Verdict == model.VerdictFraud && p.alerts != nil {
		p.alerts.Add(alertFor(res))
	}
	if p.store != nil {
		if err := p.store.SaveEvaluation(ctx, auditRecord(res, f)); err != nil {
			p.sinkFailed("audit", res, err)
		}
	}
	if res.Scored() && p.publisher != nil {
		if err := p.publisher.Publish(ctx, res); err != nil {
			p.sinkFailed("publish", res, err)
		}
	}
	return res
}

func (p *Processor) sinkFailed(sink string, res engine.Result, err error) {
	metrics.SinkFailuresTotal.WithLabelValues(sink).Inc()
	if p.logger != nil {
		p.logger.Warn("sink write failed", "sink", sink, "evaluation_id", res.EvaluationID, "err", err)
	}
}

func alertFor(res engine.Result) model.Alert {
	tx := res.Transaction
	return model.Alert{
		EvaluationID:  res.EvaluationID,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Country:       tx.Country,
		Timestamp:     tx.Timestamp,
		Score:         res.Risk.Score,
		Flags:         res.Risk.Flags,
		RaisedAt:      res.EvaluatedAt,
	}
}

// auditRecord identifies the transaction as far as the input allows. Amount
// and IP address are never copied.
func auditRecord(res engine.Result, f *normalize.Fields) model.AuditRecord {
	rec := model.AuditRecord{
		EvaluationID: res.EvaluationID,
		Verdict:      res.Verdict,
		Flags:        []string{},
		Reason:       res.Reason,
		EvaluatedAt:  res.EvaluatedAt,
	}
	if f != nil {
		rec.Source = f.Source
	}
	if res.Scored() {
		rec.Score = res.Risk.Score
		rec.Flags = res.Risk.Flags
	}

	if tx := res.Transaction; tx.ID != "" {
		rec.TransactionID = tx.ID
		rec.UserID = tx.UserID
		rec.Timestamp = tx.Timestamp
		rec.Country = tx.Country
		return rec
	}
	if f == nil {
		return rec
	}
	rec.TransactionID = rawValue(f, model.FieldID)
	rec.UserID = rawValue(f, model.FieldUserID)
	rec.Country = rawValue(f, model.FieldCountry)
	if ts, err := normalize.ParseTimestamp(rawValue(f, model.FieldTimestamp)); err == nil {
		rec.Timestamp = ts
	}
	return rec
}

func rawValue(f *normalize.Fields, name string) string {
	v, _ := f.Value(name)
	return strings.TrimSpace(v)
}
