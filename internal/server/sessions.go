package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"foodbridge/internal/delivery"
	"foodbridge/internal/engine"
	"foodbridge/internal/engine/auth"
)

type sessionPath struct {
	ID string `path:"id"`
}

type sessionResponse struct {
	Body engine.SessionView `json:"body"`
}

func viewResponse(v engine.SessionView, err error) (*sessionResponse, error) {
	if err != nil {
		return nil, handleError(err)
	}
	return &sessionResponse{Body: v}, nil
}

// sessionAccess lets the donor who opened a session drive it. NGO staff and
// admins may act on any session.
func (d deps) sessionAccess(ctx context.Context, id, perm string) (Principal, error) {
	p, err := d.requirePermission(ctx, perm)
	if err != nil {
		return Principal{}, err
	}
	v, err := d.e.GetSession(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	if v.OwnerID == p.ActorID {
		return p, nil
	}
	for _, alt := range []string{auth.PermVerificationDecide, auth.PermAdminRead} {
		if hasPermission(p.Permissions, alt) {
			return p, nil
		}
		if ok, err := d.authz.ActorHasPermission(ctx, p.ActorID, p.Roles, alt); err != nil {
			return Principal{}, err
		} else if ok {
			return p, nil
		}
	}
	return Principal{}, auth.ForbiddenError{Permission: perm}
}

// sessionAction registers a body-less POST that drives one pipeline step.
func sessionAction(api huma.API, d deps, id, route, summary, perm string, step func(context.Context, string, string) (engine.SessionView, error)) {
	huma.Register(api, huma.Operation{
		OperationID: id,
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/" + route,
		Summary:     summary,
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *sessionPath) (*sessionResponse, error) {
		p, err := d.sessionAccess(ctx, input.ID, perm)
		if err != nil {
			return nil, handleError(err)
		}
		return viewResponse(step(ctx, input.ID, p.ActorID))
	})
}

func registerSessions(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Open a donation session",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*sessionResponse, error) {
		p, err := d.requirePermission(ctx, auth.PermDonationCreate)
		if err != nil {
			return nil, handleError(err)
		}
		return viewResponse(d.e.StartSession(ctx, p.ActorID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a donation session",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*sessionResponse, error) {
		if _, err := d.sessionAccess(ctx, input.ID, auth.PermDonationRead); err != nil {
			return nil, handleError(err)
		}
		return viewResponse(d.e.GetSession(ctx, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "close-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{id}",
		Summary:       "Discard a donation session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct{}, error) {
		if _, err := d.sessionAccess(ctx, input.ID, auth.PermDonationCreate); err != nil {
			return nil, handleError(err)
		}
		if err := d.e.CloseSession(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	sessionAction(api, d, "reset-session", "reset", "Return a session to idle", auth.PermDonationCreate, d.e.ResetSession)

	huma.Register(api, huma.Operation{
		OperationID: "submit-image",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/image",
		Summary:     "Submit a donation photo for classification",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body ImageRequest `json:"body"`
	}) (*sessionResponse, error) {
		p, err := d.sessionAccess(ctx, input.ID, auth.PermDonationCreate)
		if err != nil {
			return nil, handleError(err)
		}
		return viewResponse(d.e.SubmitImage(ctx, input.ID, p.ActorID, input.Body.Image, input.Body.ContentType))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-safety-check",
		Method:      http.MethodPatch,
		Path:        "/sessions/{id}/safety-check",
		Summary:     "Edit the safety checklist",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SafetyCheckPatch `json:"body"`
	}) (*sessionResponse, error) {
		if _, err := d.sessionAccess(ctx, input.ID, auth.PermDonationCreate); err != nil {
			return nil, handleError(err)
		}
		return viewResponse(d.e.UpdateSafetyCheck(ctx, input.ID, input.Body.update()))
	})

	sessionAction(api, d, "submit-safety-check", "safety-check/submit", "Submit a valid checklist", auth.PermDonationCreate, d.e.SubmitSafetyCheck)
	sessionAction(api, d, "route-donation", "route", "Choose NGO matching or direct distribution", auth.PermDonationCreate, d.e.Route)

	huma.Register(api, huma.Operation{
		OperationID: "match-ngo",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/match",
		Summary:     "Score the donation against an NGO request",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body MatchRequest `json:"body"`
	}) (*sessionResponse, error) {
		p, err := d.sessionAccess(ctx, input.ID, auth.PermDonationCreate)
		if err != nil {
			return nil, handleError(err)
		}
		return viewResponse(d.e.MatchNGO(ctx, input.ID, p.ActorID, input.Body.NgoID))
	})

	sessionAction(api, d, "distribute-locally", "distribute-locally", "Hand the donation out locally", auth.PermDonationCreate, d.e.DistributeLocally)
	sessionAction(api, d, "complete-distribution", "distribution/complete", "Mark local distribution done", auth.PermDonationCreate, d.e.CompleteDistribution)
	sessionAction(api, d, "start-delivery", "delivery", "Dispatch a driver", auth.PermDonationCreate, d.e.StartDelivery)

	huma.Register(api, huma.Operation{
		OperationID: "delivery-status",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/delivery",
		Summary:     "Current delivery snapshot",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body delivery.Snapshot `json:"body"`
	}, error) {
		if _, err := d.sessionAccess(ctx, input.ID, auth.PermDonationRead); err != nil {
			return nil, handleError(err)
		}
		snap, err := d.e.DeliveryStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body delivery.Snapshot `json:"body"`
		}{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-delivery",
		Method:      http.MethodDelete,
		Path:        "/sessions/{id}/delivery",
		Summary:     "Stop tracking and return to the match",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *sessionPath) (*sessionResponse, error) {
		p, err := d.sessionAccess(ctx, input.ID, auth.PermDonationCreate)
		if err != nil {
			return nil, handleError(err)
		}
		return viewResponse(d.e.CancelDelivery(ctx, input.ID, p.ActorID))
	})
}

func registerVerification(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "accept-delivery",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/verification/accept",
		Summary:     "Accept a delivered donation",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AcceptRequest `json:"body"`
	}) (*sessionResponse, error) {
		p, err := d.requirePermission(ctx, auth.PermVerificationDecide)
		if err != nil {
			return nil, handleError(err)
		}
		return viewResponse(d.e.AcceptDelivery(ctx, input.ID, p.ActorID, input.Body.checks()))
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-delivery",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/verification/reject",
		Summary:     "Reject a delivered donation and divert it",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body RejectRequest `json:"body"`
	}) (*sessionResponse, error) {
		p, err := d.requirePermission(ctx, auth.PermVerificationDecide)
		if err != nil {
			return nil, handleError(err)
		}
		return viewResponse(d.e.RejectDelivery(ctx, input.ID, p.ActorID, input.Body.Reason))
	})
}
