package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"txguard/internal/model"
	"txguard/internal/normalize"
)

// Accepted spellings for each transaction field, in lookup order.
var fieldAliases = map[string][]string{
	model.FieldID:        {"id", "transaction_id", "tx_id", "txid"},
	model.FieldAmount:    {"amount", "amt"},
	model.FieldUserID:    {"user_id", "userid", "user", "customer_id"},
	model.FieldTimestamp: {"timestamp", "time", "ts"},
	model.FieldIPAddress: {"ip_address", "ip", "ipaddress", "client_ip"},
	model.FieldCountry:   {"country", "country_code"},
}

var aliasToField = func() map[string]string {
	out := make(map[string]string)
	for field, aliases := range fieldAliases {
		for _, a := range aliases {
			out[a] = field
		}
	}
	return out
}()

// ErrNotObject reports valid JSON that is not an object.
var ErrNotObject = errors.New("json value is not an object")

// ParseJSONBytes decodes one JSON object into Fields.
func ParseJSONBytes(data []byte) (*normalize.Fields, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return ParseJSONMap(obj), nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseJSONMap maps a decoded object onto Fields. Keys match case-insensitively;
// null values count as absent. When several keys fold to the same name the
// lower-case spelling wins, then the lexically smallest.
func ParseJSONMap(obj map[string]any) *normalize.Fields {
	lower := make(map[string]any, len(obj))
	origin := make(map[string]string, len(obj))
	for k, v := range obj {
		lk := strings.ToLower(strings.TrimSpace(k))
		if prev, seen := origin[lk]; seen && !preferKey(k, prev, lk) {
			continue
		}
		lower[lk] = v
		origin[lk] = k
	}
	fields := &normalize.Fields{}
	for _, name := range model.RequiredFields {
		for _, alias := range fieldAliases[name] {
			v, ok := lower[alias]
			if !ok || v == nil {
				continue
			}
			fields.Set(name, jsonString(v))
			break
		}
	}
	return fields
}

func preferKey(candidate, current, folded string) bool {
	if current == folded {
		return false
	}
	if candidate == folded {
		return true
	}
	return candidate < current
}

func jsonString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}
