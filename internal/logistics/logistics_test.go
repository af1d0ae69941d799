package logistics

import (
	"context"
	"strings"
	"testing"

	"foodbridge/internal/config"
	"foodbridge/internal/domain"
)

func weight(v float64) *float64 { return &v }

func TestDecideThreshold(t *testing.T) {
	p := Policy{MinWeightKg: 5, MissingWeight: RouteNGOMatching}
	cases := []struct {
		w    *float64
		want Route
	}{
		{weight(4.99), RouteDirect},
		{weight(0), RouteDirect},
		{weight(5.0), RouteNGOMatching},
		{weight(12), RouteNGOMatching},
		{nil, RouteNGOMatching},
	}
	for _, c := range cases {
		got := Decide(domain.Donation{WeightKg: c.w}, p)
		if got != c.want {
			t.Fatalf("weight %v: got %s want %s", c.w, got, c.want)
		}
	}
	p.MissingWeight = RouteDirect
	if got := Decide(domain.Donation{}, p); got != RouteDirect {
		t.Fatalf("missing weight override ignored: %s", got)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	p := PolicyFromConfig(cfg.Logistics)
	if p.MinWeightKg != 5 || p.MissingWeight != RouteNGOMatching {
		t.Fatalf("unexpected policy %+v", p)
	}
	cfg.Logistics.MissingWeightRoute = config.RouteDirect
	if PolicyFromConfig(cfg.Logistics).MissingWeight != RouteDirect {
		t.Fatalf("expected direct")
	}
}

func TestPlanDirectShowsFailedRule(t *testing.T) {
	cfg := config.Default()
	dec := Plan(domain.Donation{WeightKg: weight(2)}, PolicyFromConfig(cfg.Logistics), cfg.Logistics.Hotspots)
	if dec.Route != RouteDirect {
		t.Fatalf("expected direct route")
	}
	if len(dec.Rules) != 1 || dec.Rules[0].Passed || dec.Rules[0].Measured != "2.0 kg" {
		t.Fatalf("unexpected rules %+v", dec.Rules)
	}
	if len(dec.Hotspots) != 3 {
		t.Fatalf("expected hotspots, got %d", len(dec.Hotspots))
	}
	dec = Plan(domain.Donation{WeightKg: weight(8)}, PolicyFromConfig(cfg.Logistics), cfg.Logistics.Hotspots)
	if dec.Route != RouteNGOMatching || !dec.Rules[0].Passed || len(dec.Hotspots) != 0 {
		t.Fatalf("unexpected ngo decision %+v", dec)
	}
}

func TestRuleScorerApprovesByDefault(t *testing.T) {
	s := NewRuleScorer(config.Default().Matching)
	d := domain.Donation{QuantityEstimate: "Feeds 4-5 people", Category: domain.CategoryVeg}
	ngo := domain.NgoRequest{RequiredDiet: domain.DietAny, RequiredQuantity: 5, DistanceKm: 1.2}
	res, err := s.Score(context.Background(), d, ngo)
	if err != nil {
		t.Fatal(err)
	}
	if res.RecommendedAction != domain.ActionApprove || res.MatchScore != 100 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRuleScorerIgnoresDietForDecision(t *testing.T) {
	s := NewRuleScorer(config.Default().Matching)
	d := domain.Donation{QuantityEstimate: "Feeds 10 people", Category: domain.CategoryNonVeg}
	ngo := domain.NgoRequest{RequiredDiet: domain.DietVegan, RequiredQuantity: 10, DistanceKm: 1}
	res, _ := s.Score(context.Background(), d, ngo)
	if res.RecommendedAction != domain.ActionApprove || res.MatchScore != 95 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRuleScorerDistancePenaltyIsCapped(t *testing.T) {
	s := NewRuleScorer(config.Default().Matching)
	d := domain.Donation{QuantityEstimate: "Feeds 50 people", Category: domain.CategoryVeg}
	res, _ := s.Score(context.Background(), d, domain.NgoRequest{RequiredDiet: domain.DietAny, RequiredQuantity: 50, DistanceKm: 12})
	if res.MatchScore != 80 {
		t.Fatalf("expected 80, got %d", res.MatchScore)
	}
	res, _ = s.Score(context.Background(), d, domain.NgoRequest{RequiredDiet: domain.DietAny, RequiredQuantity: 50, DistanceKm: 100})
	if res.MatchScore != 70 || res.RecommendedAction != domain.ActionApprove {
		t.Fatalf("expected capped penalty, got %+v", res)
	}
}

func TestRuleScorerRejectsStarvedRequests(t *testing.T) {
	s := NewRuleScorer(config.Default().Matching)
	d := domain.Donation{QuantityEstimate: "Feeds 4-5 people", Category: domain.CategoryVeg}
	res, _ := s.Score(context.Background(), d, domain.NgoRequest{RequiredDiet: domain.DietVeg, RequiredQuantity: 50, DistanceKm: 5})
	if res.RecommendedAction != domain.ActionReject {
		t.Fatalf("expected reject, got %+v", res)
	}
	if res.MatchScore > 40 || !strings.Contains(res.Reason, "too small") {
		t.Fatalf("unexpected reject result %+v", res)
	}
}

func TestRuleScorerServingsFallBackToWeight(t *testing.T) {
	s := NewRuleScorer(config.Default().Matching)
	n, ok := s.Servings(domain.Donation{QuantityEstimate: "a large tray", WeightKg: weight(2.5)})
	if !ok || n != 10 {
		t.Fatalf("expected 10 servings, got %d %v", n, ok)
	}
	if _, ok := s.Servings(domain.Donation{QuantityEstimate: "some"}); ok {
		t.Fatalf("expected unknown servings")
	}
}

func TestRuleScorerDistanceNeverBlocksDelivery(t *testing.T) {
	cfg := config.Default().Matching
	cfg.MaxDistancePenalty = 0
	cfg.DistancePenaltyPerKm = 5
	s := NewRuleScorer(cfg)
	d := domain.Donation{QuantityEstimate: "Feeds 6 people", Category: domain.CategoryNonVeg}
	res, _ := s.Score(context.Background(), d, domain.NgoRequest{RequiredDiet: domain.DietVeg, RequiredQuantity: 10, DistanceKm: 40})
	if res.MatchScore != 0 {
		t.Fatalf("expected uncapped penalty to floor the score, got %d", res.MatchScore)
	}
	if res.RecommendedAction != domain.ActionApprove {
		t.Fatalf("distance must not change the recommendation, got %+v", res)
	}
}
