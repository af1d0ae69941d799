package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"foodbridge/internal/domain"
)

// CreateVerificationTx stores an NGO decision in the caller's transaction.
func (r Repo) CreateVerificationTx(ctx context.Context, tx *sql.Tx, v domain.Verification) (domain.Verification, error) {
	if v.Checks == nil {
		v.Checks = map[string]bool{}
	}
	checks, err := json.Marshal(v.Checks)
	if err != nil {
		return domain.Verification{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO verifications(id, session_id, ngo_id, decided_by, outcome, checks_json, reason, diversion, created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		v.ID, v.SessionID, v.NgoID, v.DecidedBy, v.Outcome, string(checks), nullable(v.Reason), nullable(v.Diversion), v.CreatedAt)
	if err != nil {
		return domain.Verification{}, err
	}
	return v, nil
}

func scanVerification(row rowScanner) (domain.Verification, error) {
	var v domain.Verification
	var checks, reason, diversion sql.NullString
	err := row.Scan(&v.ID, &v.SessionID, &v.NgoID, &v.DecidedBy, &v.Outcome, &checks, &reason, &diversion, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	v.Reason = reason.String
	v.Diversion = diversion.String
	v.Checks = map[string]bool{}
	if checks.Valid && checks.String != "" {
		_ = json.Unmarshal([]byte(checks.String), &v.Checks)
	}
	return v, nil
}

// VerificationForSession returns the decision recorded for a session.
func (r Repo) VerificationForSession(ctx context.Context, sessionID string) (domain.Verification, error) {
	return scanVerification(r.DB.QueryRowContext(ctx, `SELECT id, session_id, ngo_id, decided_by, outcome, checks_json, reason, diversion, created_at
FROM verifications WHERE session_id=? ORDER BY created_at DESC LIMIT 1`, sessionID))
}

// ListVerificationsByNGO returns decisions for one NGO, oldest first.
func (r Repo) ListVerificationsByNGO(ctx context.Context, ngoID string) ([]domain.Verification, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, session_id, ngo_id, decided_by, outcome, checks_json, reason, diversion, created_at
FROM verifications WHERE ngo_id=? ORDER BY created_at ASC, id ASC`, ngoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
