package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"txguard/internal/config"
	"txguard/internal/normalize"
)

// MessageReader is the subset of *kafka.Reader the consumer loop uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- *normalize.Fields, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go ConsumeKafka(ctx, reader, NewParser(), out, logger)
}

// ConsumeKafka reads messages until ctx ends, queueing one transaction per
// message. The reader is closed on return.
func ConsumeKafka(ctx context.Context, reader MessageReader, parser *Parser, out chan<- *normalize.Fields, logger *slog.Logger) {
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("kafka read error", "err", err)
			}
			if !BackoffSleep(ctx, 500*time.Millisecond) {
				return
			}
			continue
		}
		fields, err := parser.ParseLine(string(m.Value))
		if err != nil {
			if logger != nil {
				logger.Warn("kafka parse error", "err", err, "partition", m.Partition, "offset", m.Offset)
			}
			continue
		}
		if fields == nil {
			continue
		}
		fields.Source = "kafka"
		SendNonBlocking(ctx, out, fields, logger)
	}
}
