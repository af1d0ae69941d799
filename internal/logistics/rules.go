package logistics

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"foodbridge/internal/config"
	"foodbridge/internal/domain"
)

// RuleScorer is the deterministic counterpart of the AI match scorer. It
// approves unless the donation is far too small for the request; a low score
// only opens the local distribution escape hatch.
type RuleScorer struct {
	StarvationFraction   float64
	ServingsPerKg        float64
	FreeDistanceKm       float64
	DistancePenaltyPerKm float64
	MaxDistancePenalty   int
}

func NewRuleScorer(cfg config.MatchingConfig) RuleScorer {
	return RuleScorer{
		StarvationFraction:   cfg.StarvationFraction,
		ServingsPerKg:        cfg.ServingsPerKg,
		FreeDistanceKm:       cfg.FreeDistanceKm,
		DistancePenaltyPerKm: cfg.DistancePenaltyPerKm,
		MaxDistancePenalty:   cfg.MaxDistancePenalty,
	}
}

var numberPattern = regexp.MustCompile(`\d+`)

// Servings reads the largest number in a "Feeds 4-5 people" style estimate,
// falling back to the weight.
func (s RuleScorer) Servings(d domain.Donation) (int, bool) {
	best := 0
	for _, m := range numberPattern.FindAllString(d.QuantityEstimate, -1) {
		if n, err := strconv.Atoi(m); err == nil && n > best {
			best = n
		}
	}
	if best > 0 {
		return best, true
	}
	if d.WeightKg != nil && s.ServingsPerKg > 0 {
		n := int(math.Floor(*d.WeightKg * s.ServingsPerKg))
		return n, n > 0
	}
	return 0, false
}

func (s RuleScorer) Score(_ context.Context, d domain.Donation, ngo domain.NgoRequest) (domain.MatchResult, error) {
	score := 100
	var notes []string

	offered, known := s.Servings(d)
	ratio := 1.0
	if known && ngo.RequiredQuantity > 0 {
		ratio = float64(offered) / float64(ngo.RequiredQuantity)
	}
	if ratio < 1 {
		score -= int(math.Round((1 - ratio) * 20))
		notes = append(notes, fmt.Sprintf("covers %d of %d requested servings", offered, ngo.RequiredQuantity))
	}

	if over := ngo.DistanceKm - s.FreeDistanceKm; over > 0 {
		penalty := int(math.Round(over * s.DistancePenaltyPerKm))
		if s.MaxDistancePenalty > 0 && penalty > s.MaxDistancePenalty {
			penalty = s.MaxDistancePenalty
		}
		score -= penalty
		notes = append(notes, fmt.Sprintf("%.1f km away", ngo.DistanceKm))
	}

	if ngo.RequiredDiet != domain.DietAny && ngo.RequiredDiet != "" && string(ngo.RequiredDiet) != string(d.Category) {
		score -= 5
		notes = append(notes, fmt.Sprintf("diet %s offered for %s request; a partner can take it", d.Category, ngo.RequiredDiet))
	}

	if known && ngo.RequiredQuantity > 0 && ratio < s.StarvationFraction {
		if score > 40 {
			score = 40
		}
		return domain.MatchResult{
			MatchScore:        clampScore(score),
			Reason:            "Rejected: quantity too small for this request; " + strings.Join(notes, "; "),
			RecommendedAction: domain.ActionReject,
		}, nil
	}

	// distance and diet lower the score but never the recommendation
	score = clampScore(score)
	reason := "Good match for hungry people nearby."
	if len(notes) > 0 {
		reason = "Approved: " + strings.Join(notes, "; ")
	}
	return domain.MatchResult{MatchScore: score, Reason: reason, RecommendedAction: domain.ActionApprove}, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
