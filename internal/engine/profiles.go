package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"foodbridge/internal/domain"
	"foodbridge/internal/events"
	"foodbridge/internal/repo"
	"foodbridge/internal/rewards"
	"foodbridge/internal/shifts"
)

const entityProfile = "profile"

var languages = []string{"en", "hi", "es", "te"}

// ProfileInput is the editable part of a profile. Points and badges are
// never taken from the caller.
type ProfileInput struct {
	ID                  string
	Name                string
	Role                string
	Organization        string
	InternshipStartDate string
	SafetyScore         *int
	Phone               string
	Language            string
}

func (in ProfileInput) validate() (domain.Role, string, error) {
	var problems []string
	if strings.TrimSpace(in.ID) == "" {
		problems = append(problems, "id is required")
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		problems = append(problems, err.Error())
	}
	lang := strings.ToLower(strings.TrimSpace(in.Language))
	if lang == "" {
		lang = "en"
	}
	known := false
	for _, l := range languages {
		if l == lang {
			known = true
		}
	}
	if !known {
		problems = append(problems, fmt.Sprintf("language %q must be one of %s", in.Language, strings.Join(languages, ", ")))
	}
	if in.InternshipStartDate != "" {
		if _, err := shifts.ParseStartDate(in.InternshipStartDate); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if in.SafetyScore != nil && (*in.SafetyScore < 0 || *in.SafetyScore > 100) {
		problems = append(problems, "safety_score must be within 0..100")
	}
	if len(problems) > 0 {
		return "", "", domain.ValidationError{Problems: problems}
	}
	return role, lang, nil
}

// SaveProfile upserts a profile. Existing points, badges and creation time
// are kept.
func (e Engine) SaveProfile(ctx context.Context, actorID string, in ProfileInput) (domain.UserProfile, error) {
	role, lang, err := in.validate()
	if err != nil {
		return domain.UserProfile{}, err
	}
	now := e.stamp()
	p := domain.UserProfile{
		ID:                  in.ID,
		Name:                strings.TrimSpace(in.Name),
		Role:                role,
		Organization:        in.Organization,
		InternshipStartDate: in.InternshipStartDate,
		SafetyScore:         in.SafetyScore,
		Phone:               in.Phone,
		Language:            lang,
		Badges:              []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	existing, err := e.Repo.GetProfile(ctx, in.ID)
	switch {
	case err == nil:
		p.RewardPoints = existing.RewardPoints
		p.Badges = existing.Badges
		p.CreatedAt = existing.CreatedAt
	case !errors.Is(err, repo.ErrNotFound):
		return domain.UserProfile{}, err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SaveProfile(ctx, tx, p); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.ProfileSaved, entityProfile, p.ID, actorID, events.EventPayload{"role": string(p.Role)})
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	return e.Repo.GetProfile(ctx, p.ID)
}

func (e Engine) GetProfile(ctx context.Context, id string) (domain.UserProfile, error) {
	return e.Repo.GetProfile(ctx, id)
}

// SetRole switches the profile's role and keeps everything else.
func (e Engine) SetRole(ctx context.Context, actorID, id, role string) (domain.UserProfile, error) {
	p, err := e.Repo.GetProfile(ctx, id)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return e.SaveProfile(ctx, actorID, ProfileInput{
		ID:                  p.ID,
		Name:                p.Name,
		Role:                role,
		Organization:        p.Organization,
		InternshipStartDate: p.InternshipStartDate,
		SafetyScore:         p.SafetyScore,
		Phone:               p.Phone,
		Language:            p.Language,
	})
}

// AwardPoints adds points and recomputes badges. The read and the write are
// separate statements, so concurrent awards resolve last writer wins.
func (e Engine) AwardPoints(ctx context.Context, userID, actorID string, points int) (domain.UserProfile, error) {
	if points <= 0 {
		return domain.UserProfile{}, fmt.Errorf("points must be positive, got %d", points)
	}
	p, err := e.Repo.GetProfile(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	total := p.RewardPoints + points
	badges := e.ladder().Badges(total)
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetRewards(ctx, tx, userID, total, badges, e.stamp()); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.RewardsAwarded, entityProfile, userID, actorID, events.EventPayload{
			"points": points,
			"total":  total,
			"badges": badges,
		})
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	p.RewardPoints = total
	p.Badges = badges
	return p, nil
}

func (e Engine) RewardsProgress(ctx context.Context, userID string) (rewards.Progress, error) {
	p, err := e.Repo.GetProfile(ctx, userID)
	if err != nil {
		return rewards.Progress{}, err
	}
	return e.ladder().Progress(p.RewardPoints), nil
}

// ListDonations returns a donor's finished flows, newest first.
func (e Engine) ListDonations(ctx context.Context, donorID string, limit int) ([]domain.DonationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.ListDonationRecords(ctx, donorID, limit)
}
