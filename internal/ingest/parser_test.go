package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txguard/internal/normalize"
)

func value(t *testing.T, f *normalize.Fields, name string) string {
	t.Helper()
	v, ok := f.Value(name)
	require.True(t, ok, "field %s missing", name)
	return v
}

func TestParseKeyValue(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine(`id=tx1 amount=150.25 user=u1 ts=2024-01-01T10:00:00Z ip=1.2.3.4 country="US"`)
	require.NoError(t, err)
	assert.Equal(t, "tx1", value(t, fields, "id"))
	assert.Equal(t, "150.25", value(t, fields, "amount"))
	assert.Equal(t, "u1", value(t, fields, "user_id"))
	assert.Equal(t, "2024-01-01T10:00:00Z", value(t, fields, "timestamp"))
	assert.Equal(t, "1.2.3.4", value(t, fields, "ip_address"))
	assert.Equal(t, "US", value(t, fields, "country"))
}

func TestParseUnrecognizedLine(t *testing.T) {
	p := NewParser()
	_, err := p.ParseLine("hello world")
	assert.Error(t, err)

	fields, err := p.ParseLine("   ")
	assert.NoError(t, err)
	assert.Nil(t, fields)
}

func TestParseCSVWithHeader(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("country,ip_address,id,amount,user_id,timestamp")
	require.NoError(t, err)
	assert.Nil(t, fields)

	fields, err = p.ParseLine("DE, 10.0.0.1, tx2, 99.5, u2, 2024-01-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "DE", value(t, fields, "country"))
	assert.Equal(t, "tx2", value(t, fields, "id"))
	assert.Equal(t, "99.5", value(t, fields, "amount"))
}

func TestParseCSVPositional(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("tx3,42,u3,2024-01-01T10:00:00Z,10.0.0.2,FR")
	require.NoError(t, err)
	assert.Equal(t, "tx3", value(t, fields, "id"))
	assert.Equal(t, "FR", value(t, fields, "country"))

	fields, err = p.ParseLine("tx4,42,u3")
	require.NoError(t, err)
	_, ok := fields.Value("country")
	assert.False(t, ok)
}

func TestParseJSONLine(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine(`{"transaction_id":"tx5","amount":1e3,"user_id":"u5","timestamp":"2024-01-01T10:00:00","ip_address":"1.1.1.1","country":null}`)
	require.NoError(t, err)
	assert.Equal(t, "tx5", value(t, fields, "id"))
	assert.Equal(t, "1e3", value(t, fields, "amount"))
	_, ok := fields.Value("country")
	assert.False(t, ok, "null counts as absent")
}

func TestParseJSONNonObject(t *testing.T) {
	_, err := ParseJSONBytes([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestParseJSONMapKeepsBooleanAmountAsText(t *testing.T) {
	fields := ParseJSONMap(map[string]any{"amount": true, "ID": "x"})
	assert.Equal(t, "true", value(t, fields, "amount"))
	assert.Equal(t, "x", value(t, fields, "id"))

	_, err := normalize.Decode(fields)
	require.Error(t, err)
}

func TestParseJSONMapCaseCollisions(t *testing.T) {
	for i := 0; i < 20; i++ {
		fields := ParseJSONMap(map[string]any{"ID": "upper", "id": "lower", "Id": "mixed"})
		assert.Equal(t, "lower", value(t, fields, "id"))

		fields = ParseJSONMap(map[string]any{"Country": "US", "COUNTRY": "XX"})
		assert.Equal(t, "XX", value(t, fields, "country"))
	}
}
