package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txguard/internal/model"
)

func alertAt(id string, at time.Time) model.Alert {
	return model.Alert{TransactionID: id, Score: 0.7, Flags: []string{model.FlagHighAmount}, RaisedAt: at}
}

func TestStoreDropsOldestPastLimit(t *testing.T) {
	s := NewStore(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.Add(alertAt(fmt.Sprintf("t%d", i), now.Add(time.Duration(i)*time.Second)))
	}
	got := s.List(0)
	require.Len(t, got, 3)
	assert.Equal(t, "t2", got[0].TransactionID)
	assert.Equal(t, "t4", got[2].TransactionID)
	assert.Equal(t, 3, s.Len())
}

func TestStoreListLimit(t *testing.T) {
	s := NewStore(10)
	now := time.Now()
	for i := 0; i < 4; i++ {
		s.Add(alertAt(fmt.Sprintf("t%d", i), now))
	}
	got := s.List(2)
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].TransactionID)
	assert.Equal(t, "t3", got[1].TransactionID)
	assert.Len(t, s.List(100), 4)
}

func TestStoreSince(t *testing.T) {
	s := NewStore(10)
	now := time.Now()
	s.Add(alertAt("old", now.Add(-time.Minute)))
	s.Add(alertAt("edge", now))
	s.Add(alertAt("new", now.Add(time.Minute)))

	got := s.Since(now)
	require.Len(t, got, 2)
	assert.Equal(t, "edge", got[0].TransactionID)
}

func TestStoreClear(t *testing.T) {
	s := NewStore(0)
	s.Add(alertAt("t", time.Now()))
	s.Clear()
	assert.Empty(t, s.List(0))
}
