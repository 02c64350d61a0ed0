package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txguard/internal/normalize"
)

type fakeReader struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	if m.Value == nil {
		return kafka.Message{}, errors.New("broker unavailable")
	}
	return m, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestConsumeKafka(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Value: []byte(`{"id":"k1","amount":"5"}`)},
		{Value: nil},
		{Value: []byte(`garbage`)},
		{Value: []byte(`id=k2 amount=7`)},
	}}
	out := make(chan *normalize.Fields, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ConsumeKafka(ctx, reader, NewParser(), out, nil)
		close(done)
	}()

	var got []*normalize.Fields
	for len(got) < 2 {
		select {
		case f := <-out:
			got = append(got, f)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for kafka messages")
		}
	}
	cancel()
	<-done

	require.Len(t, got, 2)
	assert.Equal(t, "k1", *got[0].ID)
	assert.Equal(t, "kafka", got[0].Source)
	assert.Equal(t, "k2", *got[1].ID)
	assert.True(t, reader.closed)
}
