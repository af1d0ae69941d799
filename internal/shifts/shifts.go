// Package shifts holds the volunteer wallet arithmetic and the internship
// certificate rule.
package shifts

import (
	"fmt"
	"math"
	"time"
)

const MinHours = 0.1

// AttendanceID is the record key: user id and check-in time in milliseconds.
func AttendanceID(userID string, checkIn time.Time) string {
	return fmt.Sprintf("%s_%d", userID, checkIn.UnixMilli())
}

// HoursWorked rounds to two decimals with a floor of 0.1 hours.
func HoursWorked(checkIn, checkOut time.Time) float64 {
	h := math.Round(checkOut.Sub(checkIn).Hours()*100) / 100
	return math.Max(MinHours, h)
}

func Earnings(hours float64, hourlyRate int) int {
	return int(math.Floor(hours * float64(hourlyRate)))
}

type Certificate struct {
	Eligible        bool    `json:"eligible"`
	MonthsCompleted int     `json:"months_completed"`
	MonthsRequired  int     `json:"months_required"`
	MonthsToGo      int     `json:"months_to_go"`
	Percent         float64 `json:"percent"`
	StartDate       string  `json:"start_date,omitempty"`
}

// ParseStartDate accepts RFC 3339 timestamps and plain dates.
func ParseStartDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("internship_start_date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// MonthsBetween counts calendar months, ignoring the day of month.
func MonthsBetween(start, now time.Time) int {
	return (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
}

// CertificateFor evaluates eligibility. An empty start date counts as today.
func CertificateFor(startDate string, required int, now time.Time) (Certificate, error) {
	start := now
	if startDate != "" {
		t, err := ParseStartDate(startDate)
		if err != nil {
			return Certificate{}, err
		}
		start = t
	}
	months := MonthsBetween(start, now)
	c := Certificate{
		MonthsCompleted: months,
		MonthsRequired:  required,
		Eligible:        months >= required,
		StartDate:       startDate,
	}
	if !c.Eligible {
		c.MonthsToGo = required - months
	}
	if required > 0 {
		c.Percent = math.Min(float64(months)/float64(required)*100, 100)
	}
	if c.Percent < 0 {
		c.Percent = 0
	}
	return c, nil
}
