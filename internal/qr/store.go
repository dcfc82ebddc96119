package qr

import (
	"context"

	"uniportal/internal/schedule"
)

// Store persists credentials and runs the scan as one unit of work.
type Store interface {
	Insert(ctx context.Context, cred Credential) (Credential, error)
	// InTx runs fn inside a single transaction. If fn returns an error the
	// transaction rolls back and no write inside it is visible.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the scan transaction: every method sees and mutates the same
// consistent snapshot, and either all writes commit or none do.
type Tx interface {
	// LockPending returns the pending credential matching the (uuid, token)
	// pair, holding a row lock until commit, or nil when no such row exists.
	// Competing scans serialize on the lock; the loser re-evaluates the
	// status predicate and sees no pending row.
	LockPending(ctx context.Context, uuid, token string) (*Credential, error)
	MarkExpired(ctx context.Context, id int64) error
	MarkScanned(ctx context.Context, id int64, studentID string) error
	LessonsFor(ctx context.Context, studentID, date, timeSlot string) ([]schedule.Entry, error)
	SetTurnout(ctx context.Context, entryID int64, turnout bool) error
}
