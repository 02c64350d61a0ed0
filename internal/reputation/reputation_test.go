package reputation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txguard/internal/config"
	"txguard/internal/engine"
	"txguard/internal/model"
)

type fakeSets struct {
	sets map[string][]string
	err  error
}

func (f *fakeSets) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(f.sets[key], f.err)
}

func testReputationConfig() config.ReputationConfig {
	return config.ReputationConfig{
		SuspiciousIPsKey: "ips",
		CountriesKey:     "countries",
		RefreshInterval:  time.Minute,
	}
}

func TestRefreshUnionsWithConfiguredLists(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Detection.HighRiskCountries = []string{"XX"}
	eng := engine.NewEngine(cfg, nil)

	fake := &fakeSets{sets: map[string][]string{
		"ips":       {"6.6.6.6"},
		"countries": {"YY"},
	}}
	s := NewSyncer(fake, eng, testReputationConfig(), nil)
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, []string{"XX", "YY"}, eng.Lists().Countries())
	assert.Equal(t, []string{"6.6.6.6"}, eng.Lists().IPs())

	res := eng.Evaluate(context.Background(), model.Transaction{
		ID: "t1", Amount: 10, UserID: "u1", Timestamp: time.Now(), IPAddress: "6.6.6.6", Country: "YY",
	})
	assert.Equal(t, []string{model.FlagHighRiskLocation, model.FlagSuspiciousIP}, res.Risk.Flags)
}

func TestRefreshFailureKeepsPreviousLists(t *testing.T) {
	eng := engine.NewEngine(config.DefaultConfig(), nil)
	fake := &fakeSets{sets: map[string][]string{"ips": {"6.6.6.6"}}}
	s := NewSyncer(fake, eng, testReputationConfig(), nil)
	require.NoError(t, s.Refresh(context.Background()))

	fake.err = errors.New("connection refused")
	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smembers ips")
	assert.Equal(t, []string{"6.6.6.6"}, eng.Lists().IPs())
}

type countingTarget struct {
	calls chan struct{}
}

func (c *countingTarget) UpdateLists(_, _ []string) {
	c.calls <- struct{}{}
}

func TestRunRefreshesImmediatelyAndStops(t *testing.T) {
	target := &countingTarget{calls: make(chan struct{}, 4)}
	s := NewSyncer(&fakeSets{}, target, testReputationConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-target.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial refresh")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
