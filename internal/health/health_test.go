package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryEmptyIsHealthy(t *testing.T) {
	healthy, statuses := NewRegistry(0).CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestRegistryPingFailure(t *testing.T) {
	r := NewRegistry(time.Second)
	r.RegisterPing("storage", func(context.Context) error { return nil })
	r.RegisterPing("redis", func(context.Context) error { return errors.New("connection refused") })

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	require.Len(t, statuses, 2)
	assert.Equal(t, Status{Name: "storage", Healthy: true}, statuses[0])
	assert.Equal(t, "redis", statuses[1].Name)
	assert.Equal(t, "connection refused", statuses[1].Detail)
}

func TestRegistryAppliesTimeout(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	r.RegisterPing("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Contains(t, statuses[0].Detail, "deadline")
}

func TestRegistryFillsMissingName(t *testing.T) {
	r := NewRegistry(0)
	r.Register("anon", func(context.Context) Status { return Status{Healthy: true} })
	_, statuses := r.CheckAll(context.Background())
	assert.Equal(t, "anon", statuses[0].Name)
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.RegisterPing("x", func(context.Context) error { return nil })
		}()
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()
	_, statuses := r.CheckAll(context.Background())
	assert.Len(t, statuses, 20)
}
