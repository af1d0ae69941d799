package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"foodbridge/internal/domain"
	"foodbridge/internal/engine"
	"foodbridge/internal/engine/auth"
	"foodbridge/internal/repo"
	"foodbridge/internal/rewards"
	"foodbridge/internal/shifts"
)

type AwardRequest struct {
	Points int `json:"points" minimum:"1"`
}

type profileResponse struct {
	Body domain.UserProfile `json:"body"`
}

type attendanceResponse struct {
	Body domain.AttendanceRecord `json:"body"`
}

// canSaveProfile lets anyone register themselves as a non-admin and keep
// their role. Anything else needs profile.write.
func (d deps) canSaveProfile(ctx context.Context, p Principal, id, role string) error {
	if id == p.ActorID {
		requested, err := domain.ParseRole(role)
		if err != nil {
			// validation reports it
			return nil
		}
		existing, err := d.e.GetProfile(ctx, id)
		switch {
		case err == nil && existing.Role == requested:
			return nil
		case errors.Is(err, repo.ErrNotFound) && requested != domain.RoleAdmin:
			return nil
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return err
		}
	}
	_, err := d.requirePermission(ctx, auth.PermProfileWrite)
	return err
}

func registerProfiles(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "save-profile",
		Method:      http.MethodPost,
		Path:        "/profiles",
		Summary:     "Create or update a profile",
		Errors:      []int{http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ProfileRequest `json:"body"`
	}) (*profileResponse, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id := strings.TrimSpace(input.Body.ID)
		if id == "" {
			id = p.ActorID
		}
		if err := d.canSaveProfile(ctx, p, id, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		saved, err := d.e.SaveProfile(ctx, p.ActorID, input.Body.input(id))
		if err != nil {
			return nil, handleError(err)
		}
		return &profileResponse{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profiles/{id}",
		Summary:     "Get a profile",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*profileResponse, error) {
		if _, err := d.requireSelfOr(ctx, auth.PermProfileRead, input.ID); err != nil {
			return nil, handleError(err)
		}
		p, err := d.e.GetProfile(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &profileResponse{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-role",
		Method:      http.MethodPatch,
		Path:        "/profiles/{id}/role",
		Summary:     "Change a profile's role",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body RoleRequest `json:"body"`
	}) (*profileResponse, error) {
		p, err := d.requirePermission(ctx, auth.PermProfileWrite)
		if err != nil {
			return nil, handleError(err)
		}
		saved, err := d.e.SetRole(ctx, p.ActorID, input.ID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &profileResponse{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rewards-progress",
		Method:      http.MethodGet,
		Path:        "/profiles/{id}/rewards",
		Summary:     "Points, badge and distance to the next tier",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body rewards.Progress `json:"body"`
	}, error) {
		if _, err := d.requireSelfOr(ctx, auth.PermRewardsRead, input.ID); err != nil {
			return nil, handleError(err)
		}
		prog, err := d.e.RewardsProgress(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rewards.Progress `json:"body"`
		}{Body: prog}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "award-points",
		Method:      http.MethodPost,
		Path:        "/profiles/{id}/rewards",
		Summary:     "Grant points to a profile",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body AwardRequest `json:"body"`
	}) (*profileResponse, error) {
		p, err := d.requirePermission(ctx, auth.PermRewardsWrite)
		if err != nil {
			return nil, handleError(err)
		}
		saved, err := d.e.AwardPoints(ctx, input.ID, p.ActorID, input.Body.Points)
		if err != nil {
			return nil, handleError(err)
		}
		return &profileResponse{Body: saved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-donations",
		Method:      http.MethodGet,
		Path:        "/profiles/{id}/donations",
		Summary:     "Donation history for a donor",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body DonationList `json:"body"`
	}, error) {
		if _, err := d.requireSelfOr(ctx, auth.PermDonationRead, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := d.e.ListDonations(ctx, input.ID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DonationList `json:"body"`
		}{Body: DonationList{Items: nonNilSlice(items)}}, nil
	})
}

func registerAttendance(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "check-in",
		Method:      http.MethodPost,
		Path:        "/attendance/check-in",
		Summary:     "Start a volunteer shift",
		Errors:      []int{http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CheckInRequest `json:"body"`
	}) (*attendanceResponse, error) {
		p, err := d.requirePermission(ctx, auth.PermAttendanceWrite)
		if err != nil {
			return nil, handleError(err)
		}
		rec, err := d.e.CheckIn(ctx, p.ActorID, input.Body.Shift)
		if err != nil {
			return nil, handleError(err)
		}
		return &attendanceResponse{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-out",
		Method:      http.MethodPost,
		Path:        "/attendance/check-out",
		Summary:     "Close the open shift and credit earnings",
		Errors:      []int{http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*attendanceResponse, error) {
		p, err := d.requirePermission(ctx, auth.PermAttendanceWrite)
		if err != nil {
			return nil, handleError(err)
		}
		rec, err := d.e.CheckOut(ctx, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &attendanceResponse{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "attendance-history",
		Method:      http.MethodGet,
		Path:        "/attendance",
		Summary:     "Shift history, newest first",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id" doc:"Defaults to the caller"`
	}) (*struct {
		Body AttendanceList `json:"body"`
	}, error) {
		p, err := d.requireSelfOr(ctx, auth.PermAttendanceRead, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		userID := input.UserID
		if userID == "" {
			userID = p.ActorID
		}
		items, err := d.e.AttendanceHistory(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttendanceList `json:"body"`
		}{Body: AttendanceList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-shift",
		Method:      http.MethodGet,
		Path:        "/attendance/active",
		Summary:     "The caller's open shift",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*attendanceResponse, error) {
		p, err := d.requirePermission(ctx, auth.PermAttendanceRead)
		if err != nil {
			return nil, handleError(err)
		}
		rec, err := d.e.ActiveShift(ctx, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &attendanceResponse{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wallet",
		Method:      http.MethodGet,
		Path:        "/wallet",
		Summary:     "Total shift earnings",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Wallet `json:"body"`
	}, error) {
		p, err := d.requirePermission(ctx, auth.PermAttendanceRead)
		if err != nil {
			return nil, handleError(err)
		}
		w, err := d.e.Wallet(ctx, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Wallet `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "certificate",
		Method:      http.MethodGet,
		Path:        "/certificate",
		Summary:     "Internship certificate eligibility",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body shifts.Certificate `json:"body"`
	}, error) {
		p, err := d.requirePermission(ctx, auth.PermCertificateRead)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := d.e.Certificate(ctx, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body shifts.Certificate `json:"body"`
		}{Body: c}, nil
	})
}
