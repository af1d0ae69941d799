// Package logistics decides where a checked donation goes: straight to local
// hotspots when it is too light for pickup, otherwise to NGO matching.
package logistics

import (
	"fmt"

	"foodbridge/internal/config"
	"foodbridge/internal/domain"
)

type Route string

const (
	RouteNGOMatching Route = "ngo_matching"
	RouteDirect      Route = "direct_distribution"
)

type Policy struct {
	MinWeightKg float64
	// MissingWeight is used when the classifier gave no weight.
	MissingWeight Route
}

func PolicyFromConfig(cfg config.LogisticsConfig) Policy {
	p := Policy{MinWeightKg: cfg.MinWeightKg, MissingWeight: RouteNGOMatching}
	if cfg.MissingWeightRoute == config.RouteDirect {
		p.MissingWeight = RouteDirect
	}
	return p
}

// Decide applies the hard weight threshold. There is no partial handling.
func Decide(d domain.Donation, p Policy) Route {
	if d.WeightKg == nil {
		if p.MissingWeight == "" {
			return RouteNGOMatching
		}
		return p.MissingWeight
	}
	if *d.WeightKg < p.MinWeightKg {
		return RouteDirect
	}
	return RouteNGOMatching
}

type ProtocolRule struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Measured string `json:"measured,omitempty"`
}

// Decision is what the router hands to the donor.
type Decision struct {
	Route    Route            `json:"route" enum:"ngo_matching,direct_distribution"`
	Rules    []ProtocolRule   `json:"rules"`
	Message  string           `json:"message,omitempty"`
	Hotspots []config.Hotspot `json:"hotspots,omitempty"`
}

func Plan(d domain.Donation, p Policy, hotspots []config.Hotspot) Decision {
	route := Decide(d, p)
	rule := ProtocolRule{
		Name:   fmt.Sprintf("NGO Logistics Rule (> %.1f kg)", p.MinWeightKg),
		Passed: route == RouteNGOMatching,
	}
	if d.WeightKg != nil {
		rule.Measured = fmt.Sprintf("%.1f kg", *d.WeightKg)
	} else {
		rule.Measured = "unknown"
	}
	dec := Decision{Route: route, Rules: []ProtocolRule{rule}}
	if route == RouteDirect {
		dec.Message = fmt.Sprintf("Quantity is below %gkg. Pickup service is NOT available.", p.MinWeightKg)
		dec.Hotspots = append([]config.Hotspot(nil), hotspots...)
	}
	return dec
}
