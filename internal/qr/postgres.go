package qr

import (
	"context"
	"database/sql"
	"errors"

	"uniportal/internal/schedule"
)

// PGStore implements Store on Postgres.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a Postgres-backed credential store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Insert persists a new credential and fills in its row id.
func (s *PGStore) Insert(ctx context.Context, cred Credential) (Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO qr (qruuid, token, subject, date, time, teacher, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, cred.UUID, cred.Token, cred.Subject, cred.Date, cred.TimeSlot, cred.Teacher, cred.Status, cred.CreatedAt)
	if err := row.Scan(&cred.ID); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// InTx runs fn in a single transaction, rolling back on error.
func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&pgTx{tx: dbTx}); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}

type pgTx struct {
	tx *sql.Tx
}

// LockPending selects the pending row FOR UPDATE. Under read committed a
// competing transaction that loses the lock race re-checks the status
// predicate after the winner commits and gets no row.
func (t *pgTx) LockPending(ctx context.Context, uuid, token string) (*Credential, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, qruuid, token, subject, date, time, teacher, status, created_at
		FROM qr
		WHERE qruuid = $1 AND token = $2 AND status = $3
		FOR UPDATE
	`, uuid, token, StatusPending)
	var cred Credential
	if err := row.Scan(&cred.ID, &cred.UUID, &cred.Token, &cred.Subject, &cred.Date, &cred.TimeSlot, &cred.Teacher, &cred.Status, &cred.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

func (t *pgTx) MarkExpired(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE qr SET status = $2 WHERE id = $1`, id, StatusExpired)
	return err
}

func (t *pgTx) MarkScanned(ctx context.Context, id int64, studentID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE qr SET status = $2, student = $3 WHERE id = $1
	`, id, StatusScanned, studentID)
	return err
}

func (t *pgTx) LessonsFor(ctx context.Context, studentID, date, timeSlot string) ([]schedule.Entry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, zach_number, group_name, date, time, subject, teacher, turnout, COALESCE(comment, ''), updated_at
		FROM full_timetable
		WHERE zach_number = $1 AND date = $2 AND time = $3
		ORDER BY id
	`, studentID, date, timeSlot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []schedule.Entry
	for rows.Next() {
		var e schedule.Entry
		if err := rows.Scan(&e.ID, &e.StudentID, &e.GroupName, &e.Date, &e.TimeSlot, &e.Subject, &e.Teacher, &e.Turnout, &e.Comment, &e.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (t *pgTx) SetTurnout(ctx context.Context, entryID int64, turnout bool) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE full_timetable SET turnout = $2, updated_at = NOW() WHERE id = $1
	`, entryID, turnout)
	return err
}
