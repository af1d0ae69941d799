package engine

import (
	"context"
	"errors"
	"time"

	"foodbridge/internal/domain"
	"foodbridge/internal/events"
	"foodbridge/internal/repo"
	"foodbridge/internal/shifts"
)

const entityAttendance = "attendance"

var (
	ErrAlreadyCheckedIn = errors.New("already checked in")
	ErrNotCheckedIn     = errors.New("no active shift")
)

// CheckIn opens a shift. A user with an ACTIVE record is refused; the check
// and the insert are separate statements.
func (e Engine) CheckIn(ctx context.Context, userID, shift string) (domain.AttendanceRecord, error) {
	if userID == "" {
		return domain.AttendanceRecord{}, domain.ValidationError{Problems: []string{"user id is required"}}
	}
	sh, err := domain.ParseShift(shift)
	if err != nil {
		return domain.AttendanceRecord{}, domain.ValidationError{Problems: []string{err.Error()}}
	}
	if _, err := e.Repo.ActiveAttendance(ctx, userID); err == nil {
		return domain.AttendanceRecord{}, ErrAlreadyCheckedIn
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.AttendanceRecord{}, err
	}
	now := e.now()
	a := domain.AttendanceRecord{
		ID:      shifts.AttendanceID(userID, now),
		UserID:  userID,
		Date:    now.Format("2006-01-02"),
		CheckIn: now.UTC().Format(time.RFC3339Nano),
		Shift:   sh,
		Status:  domain.AttendanceActive,
	}
	if err := e.Repo.InsertAttendance(ctx, a); err != nil {
		return domain.AttendanceRecord{}, err
	}
	if err := e.events().Append(ctx, nil, events.ShiftCheckedIn, entityAttendance, a.ID, userID, events.EventPayload{"shift": string(sh)}); err != nil {
		e.Log.Warn("attendance %s: check-in event: %v", a.ID, err)
	}
	return a, nil
}

// CheckOut closes the active shift and books the earnings.
func (e Engine) CheckOut(ctx context.Context, userID string) (domain.AttendanceRecord, error) {
	if err := e.requireConfig(); err != nil {
		return domain.AttendanceRecord{}, err
	}
	a, err := e.Repo.ActiveAttendance(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.AttendanceRecord{}, ErrNotCheckedIn
	}
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	in, err := time.Parse(time.RFC3339Nano, a.CheckIn)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	out := e.now()
	hours := shifts.HoursWorked(in, out)
	earnings := shifts.Earnings(hours, e.Config.Shifts.HourlyRate)
	if err := e.Repo.CompleteAttendance(ctx, a.ID, out.UTC().Format(time.RFC3339Nano), hours, earnings); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.AttendanceRecord{}, ErrNotCheckedIn
		}
		return domain.AttendanceRecord{}, err
	}
	if err := e.events().Append(ctx, nil, events.ShiftCheckedOut, entityAttendance, a.ID, userID, events.EventPayload{
		"hours_worked": hours,
		"earnings":     earnings,
	}); err != nil {
		e.Log.Warn("attendance %s: check-out event: %v", a.ID, err)
	}
	return e.Repo.GetAttendance(ctx, a.ID)
}

func (e Engine) AttendanceHistory(ctx context.Context, userID string) ([]domain.AttendanceRecord, error) {
	return e.Repo.ListAttendance(ctx, userID)
}

// ActiveShift returns the open record, or repo.ErrNotFound.
func (e Engine) ActiveShift(ctx context.Context, userID string) (domain.AttendanceRecord, error) {
	return e.Repo.ActiveAttendance(ctx, userID)
}

type Wallet struct {
	Total      int    `json:"total"`
	Currency   string `json:"currency"`
	HourlyRate int    `json:"hourly_rate"`
}

func (e Engine) Wallet(ctx context.Context, userID string) (Wallet, error) {
	if err := e.requireConfig(); err != nil {
		return Wallet{}, err
	}
	total, err := e.Repo.SumEarnings(ctx, userID)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{Total: total, Currency: e.Config.Shifts.Currency, HourlyRate: e.Config.Shifts.HourlyRate}, nil
}

// Certificate evaluates the internship certificate from the profile's start
// date.
func (e Engine) Certificate(ctx context.Context, userID string) (shifts.Certificate, error) {
	if err := e.requireConfig(); err != nil {
		return shifts.Certificate{}, err
	}
	p, err := e.Repo.GetProfile(ctx, userID)
	if err != nil {
		return shifts.Certificate{}, err
	}
	return shifts.CertificateFor(p.InternshipStartDate, e.Config.Shifts.CertificateMonths, e.now())
}
