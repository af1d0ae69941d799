package repo

import (
	"context"
	"database/sql"
	"errors"

	"foodbridge/internal/domain"
)

const attendanceColumns = `id,user_id,date,check_in,check_out,shift,hours_worked,earnings,status`

func scanAttendance(row rowScanner) (domain.AttendanceRecord, error) {
	var a domain.AttendanceRecord
	var checkOut sql.NullString
	var hours sql.NullFloat64
	var earnings sql.NullInt64
	err := row.Scan(&a.ID, &a.UserID, &a.Date, &a.CheckIn, &checkOut, &a.Shift, &hours, &earnings, &a.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if checkOut.Valid {
		a.CheckOut = &checkOut.String
	}
	if hours.Valid {
		a.HoursWorked = &hours.Float64
	}
	if earnings.Valid {
		v := int(earnings.Int64)
		a.Earnings = &v
	}
	return a, nil
}

// InsertAttendance appends a check-in record.
func (r Repo) InsertAttendance(ctx context.Context, a domain.AttendanceRecord) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO attendance(`+attendanceColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.Date, a.CheckIn, a.CheckOut, string(a.Shift), nullableFloatPtr(a.HoursWorked), nullableIntPtr(a.Earnings), a.Status)
	return err
}

// ActiveAttendance returns the open record for a user.
func (r Repo) ActiveAttendance(ctx context.Context, userID string) (domain.AttendanceRecord, error) {
	return scanAttendance(r.DB.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE user_id=? AND status=? ORDER BY check_in DESC LIMIT 1`,
		userID, domain.AttendanceActive))
}

// CompleteAttendance closes an ACTIVE record. It reports ErrNotFound when
// the record was already closed by another session.
func (r Repo) CompleteAttendance(ctx context.Context, id, checkOut string, hours float64, earnings int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE attendance SET check_out=?, hours_worked=?, earnings=?, status=? WHERE id=? AND status=?`,
		checkOut, hours, earnings, domain.AttendanceCompleted, id, domain.AttendanceActive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAttendance(ctx context.Context, id string) (domain.AttendanceRecord, error) {
	return scanAttendance(r.DB.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id=?`, id))
}

// ListAttendance returns a user's history, newest check-in first.
func (r Repo) ListAttendance(ctx context.Context, userID string) ([]domain.AttendanceRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE user_id=? ORDER BY check_in DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AttendanceRecord
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// SumEarnings totals completed shift earnings for a user.
func (r Repo) SumEarnings(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(earnings),0) FROM attendance WHERE user_id=? AND status=?`,
		userID, domain.AttendanceCompleted).Scan(&total)
	return total, err
}
