package engine

import (
	"context"

	"foodbridge/internal/domain"
	"foodbridge/internal/repo"
)

type Overview struct {
	UsersByRole       map[string]int `json:"users_by_role"`
	DonationsByStatus map[string]int `json:"donations_by_status"`
	TotalUsers        int            `json:"total_users"`
	TotalDonations    int            `json:"total_donations"`
	LiveSessions      int            `json:"live_sessions"`
}

func (e Engine) AdminOverview(ctx context.Context) (Overview, error) {
	users, err := e.Repo.CountProfilesByRole(ctx)
	if err != nil {
		return Overview{}, err
	}
	donations, err := e.Repo.CountDonationsByStatus(ctx)
	if err != nil {
		return Overview{}, err
	}
	o := Overview{UsersByRole: users, DonationsByStatus: donations, LiveSessions: e.Sessions.Len()}
	for _, n := range users {
		o.TotalUsers += n
	}
	for _, n := range donations {
		o.TotalDonations += n
	}
	return o, nil
}

func (e Engine) Violations(ctx context.Context, limit int) ([]domain.ViolationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return e.Repo.ListViolations(ctx, limit)
}

// ListEvents returns the audit log, newest first.
func (e Engine) ListEvents(ctx context.Context, limit int, f repo.EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, f)
}
