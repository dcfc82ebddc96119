package qr

import (
	"errors"
	"time"
)

// Status is the credential state. Transitions are monotonic:
// pending -> scanned, pending -> expired. Terminal states never change.
type Status string

const (
	StatusPending Status = "pending"
	StatusScanned Status = "scanned"
	StatusExpired Status = "expired"
)

// Credential is the QR-code-backed, single-use proof that a student was
// present at a specific lesson slot. The (UUID, Token) pair identifies
// exactly one credential; the token is never derivable from the UUID.
type Credential struct {
	ID        int64
	UUID      string
	Token     string
	Subject   string
	Date      string
	TimeSlot  string
	Teacher   string
	Student   string // zach number of the scanner, empty until scanned
	Status    Status
	CreatedAt time.Time
}

// Result is the outcome of a scan returned to the student's device.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
	Teacher string `json:"teacher,omitempty"`
	Group   string `json:"group,omitempty"`
}

// Scan rejection messages. An unknown UUID, a wrong token, an expired
// credential and an already-scanned credential all produce MsgInvalid, so a
// caller cannot probe which credentials exist.
const (
	MsgInvalid  = "invalid or inactive QR code"
	MsgNoLesson = "no lesson at this time"
	MsgMismatch = "lesson mismatch"
	MsgAccepted = "QR code confirmed"
)

// ErrConflict signals a storage failure inside the scan transaction; both
// writes were rolled back and the caller may retry.
var ErrConflict = errors.New("scan conflict, retry")
