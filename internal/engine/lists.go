package engine

import (
	"sort"
	"strings"
)

// RiskLists holds the membership sets behind the location and IP signals.
// A RiskLists is never mutated after construction; updates build a new one.
type RiskLists struct {
	countries map[string]struct{}
	ips       map[string]struct{}
}

func NewRiskLists(countries, ips []string) *RiskLists {
	return &RiskLists{
		countries: buildSet(countries, normalizeCountry),
		ips:       buildSet(ips, normalizeIP),
	}
}

func buildSet(values []string, norm func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := norm(v)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}

func (l *RiskLists) HighRiskCountry(country string) bool {
	if l == nil {
		return false
	}
	key := normalizeCountry(country)
	if key == "" {
		return false
	}
	_, ok := l.countries[key]
	return ok
}

func (l *RiskLists) SuspiciousIP(ip string) bool {
	if l == nil {
		return false
	}
	key := normalizeIP(ip)
	if key == "" {
		return false
	}
	_, ok := l.ips[key]
	return ok
}

// Union returns a new set containing the members of both. Either side may be nil.
func (l *RiskLists) Union(other *RiskLists) *RiskLists {
	return NewRiskLists(
		append(l.Countries(), other.Countries()...),
		append(l.IPs(), other.IPs()...),
	)
}

// Countries returns the high-risk country codes, sorted.
func (l *RiskLists) Countries() []string {
	if l == nil {
		return nil
	}
	return sortedKeys(l.countries)
}

// IPs returns the suspicious addresses, sorted.
func (l *RiskLists) IPs() []string {
	if l == nil {
		return nil
	}
	return sortedKeys(l.ips)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Country codes compare case-insensitively.
func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeIP(ip string) string {
	return strings.TrimSpace(ip)
}
