// Package reputation keeps the engine's suspicious IP and high-risk country
// lists in step with sets maintained in Redis.
package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"txguard/internal/config"
	"txguard/internal/metrics"
)

// SetReader is the part of *redis.Client the syncer needs.
type SetReader interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// ListUpdater receives refreshed lists; *engine.Engine satisfies it.
type ListUpdater interface {
	UpdateLists(ips, countries []string)
}

func NewClient(cfg config.ReputationConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

type Syncer struct {
	client       SetReader
	target       ListUpdater
	ipsKey       string
	countriesKey string
	interval     time.Duration
	logger       *slog.Logger
}

func NewSyncer(client SetReader, target ListUpdater, cfg config.ReputationConfig, logger *slog.Logger) *Syncer {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Syncer{
		client:       client,
		target:       target,
		ipsKey:       cfg.SuspiciousIPsKey,
		countriesKey: cfg.CountriesKey,
		interval:     interval,
		logger:       logger,
	}
}

// Refresh reads both sets and hands them to the target. On any error the
// target keeps its previous lists.
func (s *Syncer) Refresh(ctx context.Context) error {
	ips, err := s.members(ctx, s.ipsKey)
	if err != nil {
		metrics.ListRefreshTotal.WithLabelValues("error").Inc()
		return err
	}
	countries, err := s.members(ctx, s.countriesKey)
	if err != nil {
		metrics.ListRefreshTotal.WithLabelValues("error").Inc()
		return err
	}
	s.target.UpdateLists(ips, countries)
	metrics.ListRefreshTotal.WithLabelValues("ok").Inc()
	if s.logger != nil {
		s.logger.Debug("reputation lists refreshed", "suspicious_ips", len(ips), "high_risk_countries", len(countries))
	}
	return nil
}

func (s *Syncer) members(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, nil
	}
	vals, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return vals, nil
}

// Run refreshes immediately and then on every interval until ctx ends.
func (s *Syncer) Run(ctx context.Context) {
	if s.logger != nil {
		s.logger.Info("reputation sync enabled", "interval", s.interval.String())
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil && s.logger != nil {
			s.logger.Warn("reputation refresh failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
