// Package scoring derives the score, maximum score, IQ and badge of a quiz run.
// Everything here is pure and recomputed on demand.
package scoring

import (
	"math"

	"iq-card-service/internal/domain"
)

const (
	BasePoints   = 10
	TimeBonusMax = 20
	IQBaseline   = 80
	IQRange      = 60
	PerQuestion  = BasePoints + TimeBonusMax
)

// DefaultBadges mirrors the stock tiers: >=80% top, >=50% mid, otherwise bottom.
var DefaultBadges = []domain.BadgeTier{
	{Threshold: 0.8, Name: "Chad"},
	{Threshold: 0.5, Name: "Rookie"},
	{Threshold: 0, Name: "Noob"},
}

// Score sums base points plus the stored bonus for every correctly answered item.
func Score(items []domain.QuizItem, selections, bonuses []int) int {
	total := 0
	for i, item := range items {
		if i >= len(selections) || selections[i] != item.CorrectIndex {
			continue
		}
		bonus := 0
		if i < len(bonuses) {
			bonus = ClampBonus(bonuses[i])
		}
		total += BasePoints + bonus
	}
	return total
}

// MaxScore is the best achievable score for n questions.
func MaxScore(n int) int {
	if n <= 0 {
		return 0
	}
	return n * PerQuestion
}

// ClampBonus bounds a remaining-time value to [0, TimeBonusMax].
func ClampBonus(remaining int) int {
	if remaining < 0 {
		return 0
	}
	if remaining > TimeBonusMax {
		return TimeBonusMax
	}
	return remaining
}

// IQ maps the score ratio linearly onto [IQBaseline, IQBaseline+IQRange].
func IQ(score, maxScore int) int {
	if maxScore <= 0 {
		return IQBaseline
	}
	ratio := float64(score) / float64(maxScore)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	// half rounds up, matching the widget's Math.round
	return IQBaseline + int(math.Floor(ratio*IQRange+0.5))
}

// Badge picks the first tier whose threshold the ratio reaches. Tiers are expected
// in descending threshold order; the last tier is the fallback. A zero maxScore
// always lands on the last tier.
func Badge(score, maxScore int, tiers []domain.BadgeTier) string {
	if len(tiers) == 0 {
		tiers = DefaultBadges
	}
	bottom := tiers[len(tiers)-1].Name
	if maxScore <= 0 {
		return bottom
	}
	for _, tier := range tiers {
		if float64(score) >= float64(maxScore)*tier.Threshold {
			return tier.Name
		}
	}
	return bottom
}

// Compute derives the full result for a run.
func Compute(items []domain.QuizItem, selections, bonuses []int, tiers []domain.BadgeTier) domain.Result {
	score := Score(items, selections, bonuses)
	maxScore := MaxScore(len(items))
	return domain.Result{
		Score:    score,
		MaxScore: maxScore,
		IQ:       IQ(score, maxScore),
		Badge:    Badge(score, maxScore, tiers),
	}
}
