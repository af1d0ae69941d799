package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"foodbridge/internal/domain"
	"foodbridge/internal/logger"
	"foodbridge/internal/netwatch"
)

var MatchSchema = &Schema{
	Type: "OBJECT",
	Properties: map[string]*Schema{
		"match_score":        {Type: "INTEGER", Description: "Score from 0-100"},
		"reason":             {Type: "STRING", Description: "Explanation of the score calculation"},
		"recommended_action": {Type: "STRING", Enum: []string{"Approve", "Reject", "Manual Review"}},
	},
	Required: []string{"match_score", "reason", "recommended_action"},
}

// Scorer asks the model to rate a donation against one NGO request.
type Scorer struct {
	b      boundary
	system string
}

func NewScorer(gen Generator, system string, status netwatch.Status, timeout time.Duration, log *logger.Logger) *Scorer {
	return &Scorer{
		b:      boundary{gen: gen, net: status, timeout: timeout, log: log, name: "match"},
		system: system,
	}
}

type donationSummary struct {
	Item     string          `json:"item"`
	Category domain.Category `json:"category"`
	Quantity string          `json:"quantity"`
	Expiry   string          `json:"expiry"`
}

// MatchPrompt renders the donation summary and the NGO request as JSON lines.
func MatchPrompt(d domain.Donation, ngo domain.NgoRequest) (string, error) {
	donation, err := json.Marshal(donationSummary{Item: d.FoodName, Category: d.Category, Quantity: d.QuantityEstimate, Expiry: d.ExpiryWindow})
	if err != nil {
		return "", err
	}
	request, err := json.Marshal(ngo)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Donation: %s\nNGO Request: %s", donation, request), nil
}

func (s *Scorer) Score(ctx context.Context, d domain.Donation, ngo domain.NgoRequest) (domain.MatchResult, error) {
	prompt, err := MatchPrompt(d, ngo)
	if err != nil {
		return domain.MatchResult{}, domain.NewPipelineError(domain.KindValidation, "cannot encode match request", err)
	}
	text, err := s.b.generate(ctx, Request{System: s.system, Parts: []Part{TextPart(prompt)}, Schema: MatchSchema})
	if err != nil {
		return domain.MatchResult{}, err
	}
	m, err := DecodeMatch(text)
	if err != nil {
		return domain.MatchResult{}, s.b.malformed(err, text)
	}
	return m, nil
}
