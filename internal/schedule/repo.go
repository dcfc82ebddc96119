package schedule

import (
	"context"
	"database/sql"
)

const entryColumns = `id, zach_number, group_name, date, time, subject, teacher, turnout, COALESCE(comment, ''), updated_at`

// Repository reads and mutates full_timetable rows.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByStudentAndDateAndTime returns the student's lessons at a slot.
func (r *Repository) FindByStudentAndDateAndTime(ctx context.Context, studentID, date, timeSlot string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM full_timetable
		WHERE zach_number = $1 AND date = $2 AND time = $3
		ORDER BY id
	`, studentID, date, timeSlot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindByStudentAndDate returns the student's lessons for a whole day.
func (r *Repository) FindByStudentAndDate(ctx context.Context, studentID, date string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM full_timetable
		WHERE zach_number = $1 AND date = $2
		ORDER BY time, id
	`, studentID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindByTeacherAndDate returns every lesson a teacher gives on a date.
func (r *Repository) FindByTeacherAndDate(ctx context.Context, teacher, date string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM full_timetable
		WHERE teacher = $1 AND date = $2
		ORDER BY time, group_name, id
	`, teacher, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SetTurnout writes the attendance flag. Setting the same value twice is a no-op.
func (r *Repository) SetTurnout(ctx context.Context, entryID int64, turnout bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE full_timetable SET turnout = $2, updated_at = NOW() WHERE id = $1
	`, entryID, turnout)
	return err
}

// SetComment writes the free-text comment on an entry.
func (r *Repository) SetComment(ctx context.Context, entryID int64, comment string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE full_timetable SET comment = $2, updated_at = NOW() WHERE id = $1
	`, entryID, comment)
	return err
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.StudentID, &e.GroupName, &e.Date, &e.TimeSlot, &e.Subject, &e.Teacher, &e.Turnout, &e.Comment, &e.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
