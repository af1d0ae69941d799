// Package rewards computes badges and tier progress from a point total.
package rewards

import (
	"math"

	"foodbridge/internal/config"
)

var badgeLabels = map[string]string{
	"BRONZE":   "Bronze Donor",
	"SILVER":   "Silver Hero",
	"GOLD":     "Gold Champion",
	"PLATINUM": "Platinum Legend",
}

type Ladder struct {
	Tiers    []config.Tier
	Ultimate config.Tier
}

func LadderFromConfig(cfg config.RewardsConfig) Ladder {
	return Ladder{Tiers: cfg.Tiers, Ultimate: cfg.Ultimate}
}

// Badges lists every tier reached, lowest first.
func (l Ladder) Badges(points int) []string {
	badges := []string{}
	for _, t := range l.Tiers {
		if points >= t.MinPoints {
			badges = append(badges, t.Name)
		}
	}
	return badges
}

type Progress struct {
	Points       int      `json:"points"`
	Badges       []string `json:"badges"`
	Current      string   `json:"current,omitempty"`
	CurrentLabel string   `json:"current_label,omitempty"`
	Next         string   `json:"next"`
	NextAt       int      `json:"next_at"`
	ToGo         int      `json:"to_go"`
	Percent      float64  `json:"percent"`
}

func (l Ladder) Progress(points int) Progress {
	p := Progress{Points: points, Badges: l.Badges(points)}
	if n := len(p.Badges); n > 0 {
		p.Current = p.Badges[n-1]
		p.CurrentLabel = badgeLabels[p.Current]
	}
	next := l.Ultimate
	for _, t := range l.Tiers {
		if points < t.MinPoints {
			next = t
			break
		}
	}
	p.Next = next.Name
	p.NextAt = next.MinPoints
	if next.MinPoints > points {
		p.ToGo = next.MinPoints - points
	}
	if next.MinPoints > 0 {
		p.Percent = math.Min(float64(points)/float64(next.MinPoints)*100, 100)
	} else {
		p.Percent = 100
	}
	return p
}
