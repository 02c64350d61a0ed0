package ingest

import (
	"encoding/csv"
	"errors"
	"regexp"
	"strings"
	"sync"

	"txguard/internal/model"
	"txguard/internal/normalize"
)

var reKV = regexp.MustCompile(`(?i)([a-z_]+)=("[^"]*"|\S+)`)

var errUnrecognized = errors.New("unrecognized transaction line")

// Parser turns one line of input into Fields. JSON objects, CSV rows and
// key=value lines are accepted.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

// ParseLine returns nil fields for blank lines and CSV headers.
func (p *Parser) ParseLine(line string) (*normalize.Fields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		fields, err := ParseJSONBytes([]byte(trim))
		if err != nil {
			return nil, err
		}
		fields.Raw = line
		return fields, nil
	}
	if strings.Contains(trim, ",") && !reKV.MatchString(trim) {
		fields, err := p.csv.Parse(trim)
		if err != nil || fields == nil {
			return nil, err
		}
		fields.Raw = line
		return fields, nil
	}
	fields, err := parseKeyValue(trim)
	if err != nil {
		return nil, err
	}
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parseKeyValue(line string) (*normalize.Fields, error) {
	matches := reKV.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil, errUnrecognized
	}
	fields := &normalize.Fields{}
	for _, m := range matches {
		assignField(fields, m[1], strings.Trim(m[2], `"`))
	}
	return fields, nil
}

// assignField sets the field an alias names. The first value seen wins.
func assignField(fields *normalize.Fields, name, value string) {
	field, ok := aliasToField[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return
	}
	if _, set := fields.Value(field); set {
		return
	}
	fields.Set(field, strings.TrimSpace(value))
}

// CSVParser remembers the first header row it sees. Without a header, columns
// are positional: id, amount, user_id, timestamp, ip_address, country.
type CSVParser struct {
	mu     sync.Mutex
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.Fields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}

	p.mu.Lock()
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		p.mu.Unlock()
		return nil, nil
	}
	header := p.header
	p.mu.Unlock()

	fields := &normalize.Fields{}
	if header != nil {
		for i, name := range header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
		return fields, nil
	}
	for i, name := range model.RequiredFields {
		if i >= len(record) {
			break
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			fields.Set(name, v)
		}
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		if _, ok := aliasToField[strings.ToLower(strings.TrimSpace(v))]; ok {
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}
