// Package verification is the NGO's receiving check. Accepting needs all
// three inspections; rejecting needs a reason and yields a waste-diversion
// advisory instead of a delivery.
package verification

import (
	"errors"
	"fmt"

	"foodbridge/internal/config"
)

const (
	CheckOdor        = "odor"
	CheckVisual      = "visual"
	CheckTemperature = "temperature"
)

type Reason string

const (
	ReasonMold    Reason = "Mold/Fungus"
	ReasonOdor    Reason = "Bad Odor"
	ReasonTexture Reason = "Texture/Discoloration"
)

func ParseReason(s string) (Reason, error) {
	switch Reason(s) {
	case ReasonMold, ReasonOdor, ReasonTexture:
		return Reason(s), nil
	}
	return "", fmt.Errorf("invalid rejection reason %q (want %s, %s or %s)", s, ReasonMold, ReasonOdor, ReasonTexture)
}

var ErrChecksIncomplete = errors.New("odor, visual and temperature checks must all pass before accepting")

type Checks struct {
	Odor        bool `json:"odor"`
	Visual      bool `json:"visual"`
	Temperature bool `json:"temperature"`
}

func (c Checks) All() bool { return c.Odor && c.Visual && c.Temperature }

func (c Checks) Map() map[string]bool {
	return map[string]bool{CheckOdor: c.Odor, CheckVisual: c.Visual, CheckTemperature: c.Temperature}
}

// CanAccept reports whether the accept action is enabled. Reject is always
// enabled.
func CanAccept(c Checks) error {
	if !c.All() {
		return ErrChecksIncomplete
	}
	return nil
}

const (
	ChannelBiogas  = "biogas"
	ChannelCompost = "compost"
)

type Diversion struct {
	Reason      Reason   `json:"reason"`
	Channel     string   `json:"channel" enum:"biogas,compost"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Facilities  []string `json:"facilities"`
}

// Divert routes rejected food: mold and odor go to biogas, the rest to compost.
func Divert(reason Reason, cfg config.VerificationConfig) Diversion {
	switch reason {
	case ReasonMold, ReasonOdor:
		return Diversion{
			Reason:      reason,
			Channel:     ChannelBiogas,
			Label:       cfg.Biogas.Label,
			Description: "Cooked food with high moisture is excellent for biogas energy generation.",
			Facilities:  append([]string(nil), cfg.Biogas.Facilities...),
		}
	default:
		return Diversion{
			Reason:      reason,
			Channel:     ChannelCompost,
			Label:       cfg.Compost.Label,
			Description: "Organic decomposition helps create nutrient-rich soil for local parks.",
			Facilities:  append([]string(nil), cfg.Compost.Facilities...),
		}
	}
}
