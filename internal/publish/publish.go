// Package publish emits scored verdicts to Kafka.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"txguard/internal/config"
	"txguard/internal/engine"
	"txguard/internal/model"
)

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Verdict is the published message body. It carries no amount, IP address or
// user id; the user id travels only as the partition key.
type Verdict struct {
	EvaluationID  string        `json:"evaluation_id"`
	TransactionID string        `json:"transaction_id"`
	Verdict       model.Verdict `json:"verdict"`
	Score         float64       `json:"score"`
	Flags         []string      `json:"flags"`
	IsFraudulent  bool          `json:"is_fraudulent"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
}

type Publisher struct {
	writer MessageWriter
}

// NewKafkaWriter builds a writer that hashes message keys onto partitions so a
// user's verdicts stay ordered.
func NewKafkaWriter(cfg config.PublishConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func New(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, res engine.Result) error {
	if !res.Scored() {
		return nil
	}
	body, err := json.Marshal(Verdict{
		EvaluationID:  res.EvaluationID,
		TransactionID: res.Transaction.ID,
		Verdict:       res.Verdict,
		Score:         res.Risk.Score,
		Flags:         res.Risk.Flags,
		IsFraudulent:  res.Risk.IsFraudulent,
		EvaluatedAt:   res.EvaluatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(res.Transaction.UserID),
		Value: body,
		Time:  res.EvaluatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write verdict: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
