package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"foodbridge/internal/domain"
)

const profileColumns = `id,name,role,COALESCE(organization,''),COALESCE(internship_start_date,''),safety_score,COALESCE(phone,''),COALESCE(language,''),reward_points,badges_json,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (domain.UserProfile, error) {
	var p domain.UserProfile
	var safety sql.NullInt64
	var badges string
	err := row.Scan(&p.ID, &p.Name, &p.Role, &p.Organization, &p.InternshipStartDate, &safety, &p.Phone, &p.Language, &p.RewardPoints, &badges, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if safety.Valid {
		v := int(safety.Int64)
		p.SafetyScore = &v
	}
	p.Badges = []string{}
	if badges != "" {
		_ = json.Unmarshal([]byte(badges), &p.Badges)
	}
	return p, nil
}

// GetProfile reads a profile by id.
func (r Repo) GetProfile(ctx context.Context, id string) (domain.UserProfile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
}

// SaveProfile writes the whole profile document, creating it when missing.
func (r Repo) SaveProfile(ctx context.Context, tx *sql.Tx, p domain.UserProfile) error {
	if p.ID == "" {
		return errors.New("profile id required")
	}
	if p.Name == "" {
		p.Name = "User"
	}
	if p.Badges == nil {
		p.Badges = []string{}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = now
	}
	badges, err := json.Marshal(p.Badges)
	if err != nil {
		return err
	}
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO profiles(id,name,role,organization,internship_start_date,safety_score,phone,language,reward_points,badges_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, role=excluded.role, organization=excluded.organization,
  internship_start_date=excluded.internship_start_date, safety_score=excluded.safety_score, phone=excluded.phone,
  language=excluded.language, reward_points=excluded.reward_points, badges_json=excluded.badges_json, updated_at=excluded.updated_at`,
		p.ID, p.Name, string(p.Role), nullable(p.Organization), nullable(p.InternshipStartDate), nullableIntPtr(p.SafetyScore),
		nullable(p.Phone), nullable(p.Language), p.RewardPoints, string(badges), p.CreatedAt, p.UpdatedAt)
	return err
}

// SetRewards overwrites points and badges. Callers read first, so concurrent
// awards resolve last-writer-wins.
func (r Repo) SetRewards(ctx context.Context, tx *sql.Tx, id string, points int, badges []string, updatedAt string) error {
	if badges == nil {
		badges = []string{}
	}
	data, err := json.Marshal(badges)
	if err != nil {
		return err
	}
	var res sql.Result
	const q = `UPDATE profiles SET reward_points=?, badges_json=?, updated_at=? WHERE id=?`
	if tx != nil {
		res, err = tx.ExecContext(ctx, q, points, string(data), updatedAt, id)
	} else {
		res, err = r.DB.ExecContext(ctx, q, points, string(data), updatedAt, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProfiles returns profiles, optionally filtered by role.
func (r Repo) ListProfiles(ctx context.Context, role domain.Role) ([]domain.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountProfilesByRole returns the number of profiles per role.
func (r Repo) CountProfilesByRole(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role, COUNT(*) FROM profiles GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		res[role] = n
	}
	return res, rows.Err()
}
