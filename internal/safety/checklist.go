// Package safety holds the donor's handling checklist. A checklist moves from
// editing to valid whenever every rule holds, and to submitted once.
package safety

import (
	"errors"
	"fmt"
	"time"

	"foodbridge/internal/domain"
)

type State string

const (
	StateEditing   State = "editing"
	StateValid     State = "valid"
	StateSubmitted State = "submitted"
)

const (
	TooOldMessage   = "Food older than 4 hours cannot be donated for safety reasons."
	RoomTempWarning = "Warning: High risk at Room Temp."
)

var ErrSubmitted = errors.New("safety checklist already submitted")

// Update carries the fields a donor changed. Nil fields are left alone.
type Update struct {
	PrepTime           *string
	Temperature        *domain.Temperature
	IsCovered          *bool
	IsPacked           *bool
	AgreesToCompliance *bool
	ShelfLife          *int
	// UTCOffsetMinutes is the donor's clock offset; prep times are read in it.
	UTCOffsetMinutes *int
}

const maxOffsetMinutes = 14 * 60

// View is what a form renders: the data, the state and the inline messages.
type View struct {
	Data      domain.SafetyCheckData `json:"data"`
	State     State                  `json:"state" enum:"editing,valid,submitted"`
	TimeError string                 `json:"time_error,omitempty"`
	// UTCOffsetMinutes is omitted until the donor sends one; the server zone applies meanwhile.
	UTCOffsetMinutes *int     `json:"utc_offset_minutes,omitempty"`
	Warnings         []string `json:"warnings"`
	Problems         []string `json:"problems"`
}

type Checklist struct {
	MaxPrepHours      float64
	MaxShelfLifeHours int
	Now               func() time.Time

	data      domain.SafetyCheckData
	offset    *int
	timeError string
	submitted bool
}

func New(maxPrepHours float64, maxShelfLifeHours int, now func() time.Time) *Checklist {
	if maxPrepHours <= 0 {
		maxPrepHours = 4
	}
	if maxShelfLifeHours <= 0 {
		maxShelfLifeHours = 24
	}
	return &Checklist{
		MaxPrepHours:      maxPrepHours,
		MaxShelfLifeHours: maxShelfLifeHours,
		Now:               now,
		data:              domain.SafetyCheckData{Temperature: domain.TemperatureRoom},
	}
}

func (c *Checklist) now() time.Time {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	if c.offset != nil {
		now = now.In(time.FixedZone("donor", *c.offset*60))
	}
	return now
}

// PrepElapsed parses an HH:MM clock time relative to now, in now's location.
// A time later than now refers to the previous day.
func PrepElapsed(prep string, now time.Time) (time.Duration, error) {
	clock, err := time.Parse("15:04", prep)
	if err != nil {
		return 0, fmt.Errorf("prep_time must be HH:MM: %w", err)
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
	if at.After(now) {
		at = at.AddDate(0, 0, -1)
	}
	return now.Sub(at), nil
}

// Apply merges u and recomputes validity. Field values are kept even when
// they break a rule.
func (c *Checklist) Apply(u Update) (View, error) {
	if c.submitted {
		return c.View(), ErrSubmitted
	}
	if u.UTCOffsetMinutes != nil {
		if off := *u.UTCOffsetMinutes; off < -maxOffsetMinutes || off > maxOffsetMinutes {
			return c.View(), domain.ValidationError{Problems: []string{fmt.Sprintf("utc_offset_minutes must be within ±%d", maxOffsetMinutes)}}
		}
	}
	if u.Temperature != nil {
		if _, err := domain.ParseTemperature(string(*u.Temperature)); err != nil {
			return c.View(), domain.ValidationError{Problems: []string{err.Error()}}
		}
		c.data.Temperature = *u.Temperature
	}
	if u.UTCOffsetMinutes != nil {
		off := *u.UTCOffsetMinutes
		c.offset = &off
	}
	if u.PrepTime != nil {
		c.data.PrepTime = *u.PrepTime
	}
	if u.IsCovered != nil {
		c.data.IsCovered = *u.IsCovered
	}
	if u.IsPacked != nil {
		c.data.IsPacked = *u.IsPacked
	}
	if u.AgreesToCompliance != nil {
		c.data.AgreesToCompliance = *u.AgreesToCompliance
	}
	if u.ShelfLife != nil {
		c.data.ShelfLife = *u.ShelfLife
	}
	c.refreshTimeError()
	return c.View(), nil
}

func (c *Checklist) refreshTimeError() {
	c.timeError = ""
	if c.data.PrepTime == "" {
		return
	}
	elapsed, err := PrepElapsed(c.data.PrepTime, c.now())
	if err != nil {
		c.timeError = err.Error()
		return
	}
	if elapsed.Hours() > c.MaxPrepHours {
		c.timeError = TooOldMessage
	}
}

func (c *Checklist) problems() []string {
	var out []string
	if c.data.PrepTime == "" {
		out = append(out, "prep_time is required")
	}
	if c.timeError != "" {
		out = append(out, c.timeError)
	}
	if !c.data.IsCovered {
		out = append(out, "food must be kept covered")
	}
	if !c.data.IsPacked {
		out = append(out, "food must be packed in clean sealed containers")
	}
	if !c.data.AgreesToCompliance {
		out = append(out, "compliance with local distribution laws must be accepted")
	}
	if c.data.ShelfLife <= 0 || c.data.ShelfLife > c.MaxShelfLifeHours {
		out = append(out, fmt.Sprintf("shelf_life must be between 1 and %d hours", c.MaxShelfLifeHours))
	}
	return out
}

func (c *Checklist) State() State {
	switch {
	case c.submitted:
		return StateSubmitted
	case len(c.problems()) == 0:
		return StateValid
	default:
		return StateEditing
	}
}

func (c *Checklist) View() View {
	// the clock moves, so a valid form can age out between updates
	if !c.submitted {
		c.refreshTimeError()
	}
	v := View{
		Data:             c.data,
		State:            c.State(),
		TimeError:        c.timeError,
		UTCOffsetMinutes: c.offset,
		Warnings:         []string{},
		Problems:         c.problems(),
	}
	if v.Problems == nil || c.submitted {
		v.Problems = []string{}
	}
	if c.data.Temperature == domain.TemperatureRoom {
		v.Warnings = append(v.Warnings, RoomTempWarning)
	}
	return v
}

// Submit freezes the checklist while it is valid.
func (c *Checklist) Submit() (domain.SafetyCheckData, error) {
	if c.submitted {
		return domain.SafetyCheckData{}, ErrSubmitted
	}
	c.refreshTimeError()
	if problems := c.problems(); len(problems) > 0 {
		return domain.SafetyCheckData{}, domain.ValidationError{Problems: problems}
	}
	c.submitted = true
	return c.data, nil
}
