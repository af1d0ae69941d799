package repo

import (
	"context"
	"database/sql"

	"foodbridge/internal/domain"
)

// InsertDonationRecord stores the outcome line of a finished session.
func (r Repo) InsertDonationRecord(ctx context.Context, tx *sql.Tx, d domain.DonationRecord) error {
	const q = `INSERT INTO donations(id,donor_id,session_id,food_name,quantity,status,ngo_name,reason,created_at) VALUES (?,?,?,?,?,?,?,?,?)`
	args := []any{d.ID, d.DonorID, d.SessionID, d.FoodName, d.Quantity, d.Status, nullable(d.NgoName), nullable(d.Reason), d.CreatedAt}
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, args...)
	} else {
		_, err = r.DB.ExecContext(ctx, q, args...)
	}
	return err
}

// ListDonationRecords returns a donor's history, newest first.
func (r Repo) ListDonationRecords(ctx context.Context, donorID string, limit int) ([]domain.DonationRecord, error) {
	query := `SELECT id,donor_id,session_id,food_name,quantity,status,COALESCE(ngo_name,''),COALESCE(reason,''),created_at FROM donations`
	var args []any
	if donorID != "" {
		query += ` WHERE donor_id=?`
		args = append(args, donorID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DonationRecord
	for rows.Next() {
		var d domain.DonationRecord
		if err := rows.Scan(&d.ID, &d.DonorID, &d.SessionID, &d.FoodName, &d.Quantity, &d.Status, &d.NgoName, &d.Reason, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// CountDonationsByStatus aggregates all donation records by status.
func (r Repo) CountDonationsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM donations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}

func (r Repo) InsertViolation(ctx context.Context, tx *sql.Tx, v domain.ViolationRecord) error {
	const q = `INSERT INTO violations(id,user_id,user_name,violation_type,severity,date) VALUES (?,?,?,?,?,?)`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, v.ID, v.UserID, v.UserName, v.ViolationType, v.Severity, v.Date)
	} else {
		_, err = r.DB.ExecContext(ctx, q, v.ID, v.UserID, v.UserName, v.ViolationType, v.Severity, v.Date)
	}
	return err
}

// ListViolations returns violations newest first.
func (r Repo) ListViolations(ctx context.Context, limit int) ([]domain.ViolationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,user_name,violation_type,severity,date FROM violations ORDER BY date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ViolationRecord
	for rows.Next() {
		var v domain.ViolationRecord
		if err := rows.Scan(&v.ID, &v.UserID, &v.UserName, &v.ViolationType, &v.Severity, &v.Date); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
