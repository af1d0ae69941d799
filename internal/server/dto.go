package server

import (
	"encoding/json"

	"foodbridge/internal/domain"
	"foodbridge/internal/engine"
	"foodbridge/internal/safety"
	"foodbridge/internal/verification"
)

type HealthResponse struct {
	Status       string `json:"status" example:"ok"`
	Online       bool   `json:"online"`
	LiveSessions int    `json:"live_sessions"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id" minLength:"1"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID     string              `json:"actor_id"`
	Roles       []string            `json:"roles"`
	Permissions []string            `json:"permissions"`
	Profile     *domain.UserProfile `json:"profile,omitempty"`
}

type ImageRequest struct {
	Image       []byte `json:"image" doc:"Base64 encoded photo"`
	ContentType string `json:"content_type" example:"image/jpeg"`
}

// SafetyCheckPatch updates only the fields present in the body.
type SafetyCheckPatch struct {
	PrepTime           *string `json:"prep_time,omitempty" example:"18:30"`
	Temperature        *string `json:"temperature,omitempty" enum:"Hot (>60°C),Cold (<5°C),Room Temp"`
	IsCovered          *bool   `json:"is_covered,omitempty"`
	IsPacked           *bool   `json:"is_packed,omitempty"`
	AgreesToCompliance *bool   `json:"agrees_to_compliance,omitempty"`
	ShelfLife          *int    `json:"shelf_life,omitempty"`
	UTCOffsetMinutes   *int    `json:"utc_offset_minutes,omitempty" minimum:"-840" maximum:"840" doc:"Donor clock offset from UTC; prep_time is read in this zone" example:"330"`
}

func (p SafetyCheckPatch) update() safety.Update {
	u := safety.Update{
		PrepTime:           p.PrepTime,
		IsCovered:          p.IsCovered,
		IsPacked:           p.IsPacked,
		AgreesToCompliance: p.AgreesToCompliance,
		ShelfLife:          p.ShelfLife,
		UTCOffsetMinutes:   p.UTCOffsetMinutes,
	}
	if p.Temperature != nil {
		t := domain.Temperature(*p.Temperature)
		u.Temperature = &t
	}
	return u
}

type MatchRequest struct {
	NgoID string `json:"ngo_id" minLength:"1"`
}

type AcceptRequest struct {
	Odor        bool `json:"odor"`
	Visual      bool `json:"visual"`
	Temperature bool `json:"temperature"`
}

func (a AcceptRequest) checks() verification.Checks {
	return verification.Checks{Odor: a.Odor, Visual: a.Visual, Temperature: a.Temperature}
}

type RejectRequest struct {
	Reason string `json:"reason" enum:"Mold/Fungus,Bad Odor,Texture/Discoloration"`
}

type ProfileRequest struct {
	ID                  string `json:"id,omitempty" doc:"Defaults to the caller"`
	Name                string `json:"name"`
	Role                string `json:"role" enum:"DONOR,NGO,ADMIN,VOLUNTEER"`
	Organization        string `json:"organization,omitempty"`
	InternshipStartDate string `json:"internship_start_date,omitempty" example:"2024-01-15"`
	SafetyScore         *int   `json:"safety_score,omitempty" minimum:"0" maximum:"100"`
	Phone               string `json:"phone,omitempty"`
	Language            string `json:"language,omitempty" enum:"en,hi,es,te"`
}

func (p ProfileRequest) input(id string) engine.ProfileInput {
	return engine.ProfileInput{
		ID:                  id,
		Name:                p.Name,
		Role:                p.Role,
		Organization:        p.Organization,
		InternshipStartDate: p.InternshipStartDate,
		SafetyScore:         p.SafetyScore,
		Phone:               p.Phone,
		Language:            p.Language,
	}
}

type RoleRequest struct {
	Role string `json:"role" enum:"DONOR,NGO,ADMIN,VOLUNTEER"`
}

type CheckInRequest struct {
	Shift string `json:"shift" enum:"MORNING,EVENING,NIGHT"`
}

type NGOList struct {
	Items []domain.NgoRequest `json:"items"`
}

type DonationList struct {
	Items []domain.DonationRecord `json:"items"`
}

type AttendanceList struct {
	Items []domain.AttendanceRecord `json:"items"`
}

type ViolationList struct {
	Items []domain.ViolationRecord `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
