package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"foodbridge/internal/domain"
)

// StripFences removes markdown code fences around a JSON answer.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

type fields map[string]json.RawMessage

func parseObject(text string) (fields, error) {
	var f fields
	if err := json.Unmarshal([]byte(StripFences(text)), &f); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	return f, nil
}

func (f fields) present(key string) bool {
	raw, ok := f[key]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (f fields) str(key string) (string, error) {
	if !f.present(key) {
		return "", fmt.Errorf("missing %s", key)
	}
	var s string
	if err := json.Unmarshal(f[key], &s); err != nil {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

func (f fields) boolean(key string) (bool, error) {
	if !f.present(key) {
		return false, fmt.Errorf("missing %s", key)
	}
	var b bool
	if err := json.Unmarshal(f[key], &b); err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}

func (f fields) number(key string) (float64, error) {
	var n float64
	if err := json.Unmarshal(f[key], &n); err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return n, nil
}

func (f fields) stringList(key string) ([]string, error) {
	if !f.present(key) {
		return nil, fmt.Errorf("missing %s", key)
	}
	var out []string
	if err := json.Unmarshal(f[key], &out); err != nil {
		return nil, fmt.Errorf("%s must be a list of strings", key)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// DecodeDonation validates the classifier answer strictly.
func DecodeDonation(text string) (domain.Donation, error) {
	f, err := parseObject(text)
	if err != nil {
		return domain.Donation{}, err
	}
	var d domain.Donation
	var problems []string
	check := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}
	var category string
	d.FoodName, err = f.str("food_name")
	check(err)
	category, err = f.str("category")
	check(err)
	if err == nil {
		c, perr := domain.ParseCategory(category)
		check(perr)
		d.Category = c
	}
	d.QuantityEstimate, err = f.str("quantity_estimate")
	check(err)
	d.FreshnessStatus, err = f.str("freshness_status")
	check(err)
	d.SafetyFlag, err = f.boolean("safety_flag")
	check(err)
	d.SafetyReason, err = f.str("safety_reason")
	check(err)
	d.ExpiryWindow, err = f.str("expiry_window")
	check(err)
	d.Allergens, err = f.stringList("allergens")
	check(err)
	if f.present("weight_kg") {
		w, werr := f.number("weight_kg")
		check(werr)
		if werr == nil {
			if w < 0 || math.IsNaN(w) {
				check(fmt.Errorf("weight_kg must be >= 0"))
			} else {
				d.WeightKg = &w
			}
		}
	}
	if len(problems) > 0 {
		return domain.Donation{}, fmt.Errorf("invalid classification: %s", strings.Join(problems, "; "))
	}
	return d, nil
}

// DecodeMatch validates the scorer answer strictly.
func DecodeMatch(text string) (domain.MatchResult, error) {
	f, err := parseObject(text)
	if err != nil {
		return domain.MatchResult{}, err
	}
	var m domain.MatchResult
	var problems []string
	if !f.present("match_score") {
		problems = append(problems, "missing match_score")
	} else if n, err := f.number("match_score"); err != nil {
		problems = append(problems, err.Error())
	} else if n != math.Trunc(n) || n < 0 || n > 100 {
		problems = append(problems, "match_score must be an integer within 0..100")
	} else {
		m.MatchScore = int(n)
	}
	if m.Reason, err = f.str("reason"); err != nil {
		problems = append(problems, err.Error())
	}
	action, err := f.str("recommended_action")
	if err != nil {
		problems = append(problems, err.Error())
	} else if m.RecommendedAction, err = domain.ParseAction(action); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return domain.MatchResult{}, fmt.Errorf("invalid match result: %s", strings.Join(problems, "; "))
	}
	return m, nil
}
