package engine

import (
	"math"
	"time"

	"txguard/internal/model"
)

// computeRisk scores tx against the user's prior history. history is read
// only and never includes tx itself.
func computeRisk(tx model.Transaction, history []model.Transaction, s *settings) model.TransactionRisk {
	flags := make([]string, 0, 5)
	var score float64
	fire := func(flag string, weight float64) {
		flags = append(flags, flag)
		score += weight
	}

	if tx.Amount > s.amountThreshold {
		fire(model.FlagHighAmount, s.weights.HighAmount)
	}
	if velocityCount(history, tx.Timestamp, s.velocityWindow) > s.velocityThreshold {
		fire(model.FlagHighVelocity, s.weights.HighVelocity)
	}
	if s.lists.HighRiskCountry(tx.Country) {
		fire(model.FlagHighRiskLocation, s.weights.HighRiskLocation)
	}
	if s.lists.SuspiciousIP(tx.IPAddress) {
		fire(model.FlagSuspiciousIP, s.weights.SuspiciousIP)
	}
	if z, ok := zScore(history, tx.Amount); ok && math.Abs(z) > s.zScoreThreshold {
		fire(model.FlagUnusualPattern, s.weights.UnusualPattern)
	}

	score = clampScore(score)
	return model.TransactionRisk{
		Score:        score,
		Flags:        flags,
		IsFraudulent: score >= s.fraudThreshold,
	}
}

// velocityCount counts history entries strictly after at-window.
func velocityCount(history []model.Transaction, at time.Time, window time.Duration) int {
	cutoff := at.Add(-window)
	n := 0
	for _, tx := range history {
		if tx.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// zScore measures amount against the population mean and standard deviation
// of history. A zero deviation divides by one. ok is false for empty history.
func zScore(history []model.Transaction, amount float64) (z float64, ok bool) {
	if len(history) == 0 {
		return 0, false
	}
	n := float64(len(history))
	var sum float64
	for _, tx := range history {
		sum += tx.Amount
	}
	mean := sum / n
	var sq float64
	for _, tx := range history {
		d := tx.Amount - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)
	if !(std > 0) {
		std = 1
	}
	return (amount - mean) / std, true
}

// clampScore rounds to three decimals so summed weights compare exactly,
// then bounds the result to [0, 1].
func clampScore(score float64) float64 {
	score = math.Round(score*1000) / 1000
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
