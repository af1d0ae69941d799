package safety

import (
	"errors"
	"testing"
	"time"

	"foodbridge/internal/domain"
)

func fixedNow() time.Time { return time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC) }

func ptr[T any](v T) *T { return &v }

func completeUpdate(prep string) Update {
	return Update{
		PrepTime:           ptr(prep),
		IsCovered:          ptr(true),
		IsPacked:           ptr(true),
		AgreesToCompliance: ptr(true),
		ShelfLife:          ptr(6),
	}
}

func TestPrepElapsedPreviousDay(t *testing.T) {
	now := time.Date(2024, 5, 10, 1, 0, 0, 0, time.UTC)
	d, err := PrepElapsed("23:00", now)
	if err != nil {
		t.Fatalf("elapsed: %v", err)
	}
	if d != 2*time.Hour {
		t.Fatalf("expected 2h, got %v", d)
	}
	if _, err := PrepElapsed("25:99", now); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestChecklistBecomesValid(t *testing.T) {
	c := New(4, 24, fixedNow)
	if c.State() != StateEditing {
		t.Fatalf("expected editing, got %s", c.State())
	}
	v, err := c.Apply(completeUpdate("12:00"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v.State != StateValid {
		t.Fatalf("expected valid, got %s (%v)", v.State, v.Problems)
	}
	if len(v.Warnings) != 1 || v.Warnings[0] != RoomTempWarning {
		t.Fatalf("expected room temp warning, got %v", v.Warnings)
	}
	data, err := c.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if data.PrepTime != "12:00" || data.ShelfLife != 6 {
		t.Fatalf("unexpected data %+v", data)
	}
	if c.State() != StateSubmitted {
		t.Fatalf("expected submitted")
	}
	if _, err := c.Submit(); !errors.Is(err, ErrSubmitted) {
		t.Fatalf("expected ErrSubmitted, got %v", err)
	}
}

func TestChecklistRejectsOldFoodButKeepsInput(t *testing.T) {
	c := New(4, 24, fixedNow)
	v, _ := c.Apply(completeUpdate("09:30"))
	if v.State != StateEditing || v.TimeError != TooOldMessage {
		t.Fatalf("expected time error, got %+v", v)
	}
	if v.Data.PrepTime != "09:30" {
		t.Fatalf("input must be kept, got %q", v.Data.PrepTime)
	}
	_, err := c.Submit()
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChecklistExactlyFourHoursIsAllowed(t *testing.T) {
	c := New(4, 24, fixedNow)
	v, _ := c.Apply(completeUpdate("10:00"))
	if v.State != StateValid {
		t.Fatalf("expected valid at exactly 4h, got %+v", v)
	}
}

func TestChecklistShelfLifeBounds(t *testing.T) {
	c := New(4, 24, fixedNow)
	u := completeUpdate("13:00")
	u.ShelfLife = ptr(0)
	if v, _ := c.Apply(u); v.State != StateEditing {
		t.Fatalf("shelf life 0 must not be valid")
	}
	if v, _ := c.Apply(Update{ShelfLife: ptr(25)}); v.State != StateEditing {
		t.Fatalf("shelf life 25 must not be valid")
	}
	if v, _ := c.Apply(Update{ShelfLife: ptr(24)}); v.State != StateValid {
		t.Fatalf("shelf life 24 must be valid, got %v", v.Problems)
	}
}

func TestChecklistMissingAttestation(t *testing.T) {
	c := New(4, 24, fixedNow)
	u := completeUpdate("13:00")
	u.IsPacked = ptr(false)
	v, _ := c.Apply(u)
	if v.State != StateEditing || len(v.Problems) != 1 {
		t.Fatalf("expected one problem, got %v", v.Problems)
	}
}

func TestChecklistRejectsUnknownTemperature(t *testing.T) {
	c := New(4, 24, fixedNow)
	bad := domain.Temperature("Lukewarm")
	if _, err := c.Apply(Update{Temperature: &bad}); err == nil {
		t.Fatalf("expected temperature error")
	}
	hot := domain.TemperatureHot
	v, err := c.Apply(Update{Temperature: &hot})
	if err != nil || len(v.Warnings) != 0 {
		t.Fatalf("hot food should carry no warning: %v %v", err, v.Warnings)
	}
}

func TestChecklistReadsPrepTimeInDonorZone(t *testing.T) {
	// 06:30 UTC is 12:00 in India (+05:30)
	serverNow := func() time.Time { return time.Date(2024, 5, 10, 6, 30, 0, 0, time.UTC) }

	c := New(4, 24, serverNow)
	u := completeUpdate("10:00")
	u.UTCOffsetMinutes = ptr(330)
	v, err := c.Apply(u)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v.State != StateValid || v.TimeError != "" {
		t.Fatalf("food cooked two hours ago should be valid, got %s %q", v.State, v.TimeError)
	}
	if v.UTCOffsetMinutes == nil || *v.UTCOffsetMinutes != 330 {
		t.Fatalf("offset not echoed: %v", v.UTCOffsetMinutes)
	}

	// 07:00 donor time is five hours old at 12:00 donor time
	if v, _ = c.Apply(Update{PrepTime: ptr("07:00")}); v.TimeError != TooOldMessage {
		t.Fatalf("expected too-old error, got %q", v.TimeError)
	}

	// without an offset the server zone applies and 10:00 is yesterday
	plain := New(4, 24, serverNow)
	if v, _ = plain.Apply(completeUpdate("10:00")); v.TimeError != TooOldMessage {
		t.Fatalf("expected server-zone reading to age out, got %q", v.TimeError)
	}
}

func TestChecklistRejectsOffsetOutOfRange(t *testing.T) {
	c := New(4, 24, fixedNow)
	u := completeUpdate("13:00")
	u.UTCOffsetMinutes = ptr(15 * 60)
	v, err := c.Apply(u)
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if v.UTCOffsetMinutes != nil || v.Data.PrepTime != "" {
		t.Fatalf("rejected patch must not be applied: %+v", v)
	}
}
