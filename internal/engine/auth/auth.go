package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"foodbridge/internal/config"
	"foodbridge/internal/domain"
	"foodbridge/internal/repo"
)

// Permission ids referenced by config.rbac.roles.
const (
	PermDonationCreate     = "donation.create"
	PermDonationRead       = "donation.read"
	PermVerificationDecide = "verification.decide"
	PermRewardsRead        = "rewards.read"
	PermRewardsWrite       = "rewards.write"
	PermAttendanceWrite    = "attendance.write"
	PermAttendanceRead     = "attendance.read"
	PermCertificateRead    = "certificate.read"
	PermProfileRead        = "profile.read"
	PermProfileWrite       = "profile.write"
	PermAdminRead          = "admin.read"
	PermEventsRead         = "events.read"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service resolves roles and permissions from the stored profile and the
// configured role table.
type Service struct {
	Config *config.Config
	Repo   repo.Repo
}

// ActorRoles returns the profile role when one is stored, otherwise the
// fallback roles (usually the token's claim).
func (s Service) ActorRoles(ctx context.Context, actorID string, fallback []string) ([]string, error) {
	if actorID == "" {
		return nil, errors.New("actor_id required")
	}
	p, err := s.Repo.GetProfile(ctx, actorID)
	switch {
	case err == nil:
		return []string{string(p.Role)}, nil
	case errors.Is(err, repo.ErrNotFound):
		var roles []string
		for _, r := range fallback {
			if role, err := domain.ParseRole(r); err == nil {
				roles = append(roles, string(role))
			}
		}
		return roles, nil
	default:
		return nil, err
	}
}

// RolePermissions lists the permissions granted to role.
func (s Service) RolePermissions(role string) []string {
	if s.Config == nil {
		return nil
	}
	return s.Config.RBAC.Roles[role].Permissions
}

func (s Service) ActorPermissions(ctx context.Context, actorID string, fallback []string) ([]string, error) {
	roles, err := s.ActorRoles(ctx, actorID, fallback)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var perms []string
	for _, r := range roles {
		for _, p := range s.RolePermissions(r) {
			if !seen[p] {
				seen[p] = true
				perms = append(perms, p)
			}
		}
	}
	sort.Strings(perms)
	return perms, nil
}

func (s Service) ActorHasPermission(ctx context.Context, actorID string, fallback []string, perm string) (bool, error) {
	perms, err := s.ActorPermissions(ctx, actorID, fallback)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

// Require returns ForbiddenError when the actor lacks perm.
func (s Service) Require(ctx context.Context, actorID string, fallback []string, perm string) error {
	ok, err := s.ActorHasPermission(ctx, actorID, fallback, perm)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: perm}
	}
	return nil
}
