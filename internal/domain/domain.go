package domain

import (
	"fmt"
	"strings"
)

type Category string

const (
	CategoryVeg    Category = "Veg"
	CategoryNonVeg Category = "Non-Veg"
	CategoryVegan  Category = "Vegan"
)

// ParseCategory accepts the canonical spelling case-insensitively.
func ParseCategory(s string) (Category, error) {
	for _, c := range []Category{CategoryVeg, CategoryNonVeg, CategoryVegan} {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category %q", s)
}

// Donation is the classifier's verdict on one photographed item. It is not
// modified after classification.
type Donation struct {
	FoodName         string   `json:"food_name"`
	Category         Category `json:"category" enum:"Veg,Non-Veg,Vegan"`
	QuantityEstimate string   `json:"quantity_estimate"`
	WeightKg         *float64 `json:"weight_kg,omitempty"`
	FreshnessStatus  string   `json:"freshness_status"`
	SafetyFlag       bool     `json:"safety_flag"`
	SafetyReason     string   `json:"safety_reason"`
	ExpiryWindow     string   `json:"expiry_window"`
	Allergens        []string `json:"allergens"`
}

type Temperature string

const (
	TemperatureHot  Temperature = "Hot (>60°C)"
	TemperatureCold Temperature = "Cold (<5°C)"
	TemperatureRoom Temperature = "Room Temp"
)

func ParseTemperature(s string) (Temperature, error) {
	switch Temperature(s) {
	case TemperatureHot, TemperatureCold, TemperatureRoom:
		return Temperature(s), nil
	}
	return "", fmt.Errorf("invalid temperature %q", s)
}

// SafetyCheckData is the donor's attestation about handling conditions.
type SafetyCheckData struct {
	PrepTime           string      `json:"prep_time"`
	Temperature        Temperature `json:"temperature"`
	IsCovered          bool        `json:"is_covered"`
	IsPacked           bool        `json:"is_packed"`
	AgreesToCompliance bool        `json:"agrees_to_compliance"`
	ShelfLife          int         `json:"shelf_life"`
}

type Diet string

const (
	DietVeg    Diet = "Veg"
	DietNonVeg Diet = "Non-Veg"
	DietVegan  Diet = "Vegan"
	DietAny    Diet = "Any"
)

type NgoRequest struct {
	ID               string  `json:"id" yaml:"id"`
	OrganizationName string  `json:"organization_name" yaml:"organization_name"`
	RequiredDiet     Diet    `json:"required_diet" yaml:"required_diet" enum:"Veg,Non-Veg,Vegan,Any"`
	RequiredQuantity int     `json:"required_quantity" yaml:"required_quantity"`
	DistanceKm       float64 `json:"distance_km" yaml:"distance_km"`
	ContactPerson    string  `json:"contact_person" yaml:"contact_person"`
	Phone            string  `json:"phone" yaml:"phone"`
}

type Action string

const (
	ActionApprove      Action = "Approve"
	ActionReject       Action = "Reject"
	ActionManualReview Action = "Manual Review"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject, ActionManualReview:
		return Action(s), nil
	}
	return "", fmt.Errorf("invalid recommended_action %q", s)
}

type MatchResult struct {
	MatchScore        int    `json:"match_score" minimum:"0" maximum:"100"`
	Reason            string `json:"reason"`
	RecommendedAction Action `json:"recommended_action" enum:"Approve,Reject,Manual Review"`
}

type Role string

const (
	RoleDonor     Role = "DONOR"
	RoleNGO       Role = "NGO"
	RoleAdmin     Role = "ADMIN"
	RoleVolunteer Role = "VOLUNTEER"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleDonor, RoleNGO, RoleAdmin, RoleVolunteer:
		return r, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

type UserProfile struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Role                Role     `json:"role" enum:"DONOR,NGO,ADMIN,VOLUNTEER"`
	Organization        string   `json:"organization,omitempty"`
	InternshipStartDate string   `json:"internship_start_date,omitempty"`
	SafetyScore         *int     `json:"safety_score,omitempty"`
	Phone               string   `json:"phone,omitempty"`
	Language            string   `json:"language,omitempty" enum:"en,hi,es,te"`
	RewardPoints        int      `json:"reward_points"`
	Badges              []string `json:"badges"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

type Shift string

const (
	ShiftMorning Shift = "MORNING"
	ShiftEvening Shift = "EVENING"
	ShiftNight   Shift = "NIGHT"
)

func ParseShift(s string) (Shift, error) {
	sh := Shift(strings.ToUpper(strings.TrimSpace(s)))
	switch sh {
	case ShiftMorning, ShiftEvening, ShiftNight:
		return sh, nil
	}
	return "", fmt.Errorf("invalid shift %q", s)
}

const (
	AttendanceActive    = "ACTIVE"
	AttendanceCompleted = "COMPLETED"
)

type AttendanceRecord struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Date        string   `json:"date"`
	CheckIn     string   `json:"check_in" format:"date-time"`
	CheckOut    *string  `json:"check_out,omitempty" format:"date-time"`
	Shift       Shift    `json:"shift" enum:"MORNING,EVENING,NIGHT"`
	HoursWorked *float64 `json:"hours_worked,omitempty"`
	Earnings    *int     `json:"earnings,omitempty"`
	Status      string   `json:"status" enum:"ACTIVE,COMPLETED"`
}

const (
	DonationPending     = "PENDING"
	DonationAccepted    = "ACCEPTED"
	DonationRejected    = "REJECTED"
	DonationDelivered   = "DELIVERED"
	DonationDistributed = "DISTRIBUTED"
)

// DonationRecord is the persisted history line for a finished flow.
type DonationRecord struct {
	ID        string `json:"id"`
	DonorID   string `json:"donor_id"`
	SessionID string `json:"session_id"`
	FoodName  string `json:"food_name"`
	Quantity  string `json:"quantity"`
	Status    string `json:"status" enum:"PENDING,ACCEPTED,REJECTED,DELIVERED,DISTRIBUTED"`
	NgoName   string `json:"ngo_name,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityCritical = "CRITICAL"
)

type ViolationRecord struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	UserName      string `json:"user_name"`
	ViolationType string `json:"violation_type"`
	Severity      string `json:"severity" enum:"LOW,MEDIUM,CRITICAL"`
	Date          string `json:"date" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID         string  `json:"id"`
	ActorID    string  `json:"actor_id"`
	Name       string  `json:"name,omitempty"`
	KeyHash    string  `json:"-"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	LastUsedAt *string `json:"last_used_at,omitempty" format:"date-time"`
}

// Verification is the stored NGO decision on a delivered donation.
type Verification struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	NgoID     string          `json:"ngo_id"`
	DecidedBy string          `json:"decided_by"`
	Outcome   string          `json:"outcome" enum:"accepted,rejected"`
	Checks    map[string]bool `json:"checks"`
	Reason    string          `json:"reason,omitempty"`
	Diversion string          `json:"diversion,omitempty"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}
