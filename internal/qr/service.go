package qr

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"uniportal/internal/metrics"
)

// Service issues credentials and runs the scan state machine.
type Service struct {
	store   Store
	baseURL string
	// expiry is the window after which an unscanned credential is treated as
	// expired, checked lazily at scan time. Zero disables expiry.
	expiry time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewService creates a service. baseURL is the public origin embedded in scan URLs.
func NewService(store Store, baseURL string, expiry time.Duration, log *zap.Logger) *Service {
	return &Service{store: store, baseURL: baseURL, expiry: expiry, now: time.Now, log: log}
}

// Issued is what the teacher gets back: the persisted credential and the
// shareable URL a student's device opens.
type Issued struct {
	Credential Credential
	URL        string
}

// Issue creates a pending credential for the lesson and returns its scan URL.
// The identifier and the secret token are independent random values.
func (s *Service) Issue(ctx context.Context, subject, date, timeSlot, teacher string) (Issued, error) {
	cred := Credential{
		UUID:      uuid.NewString(),
		Token:     uuid.NewString(),
		Subject:   subject,
		Date:      date,
		TimeSlot:  timeSlot,
		Teacher:   teacher,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	cred, err := s.store.Insert(ctx, cred)
	if err != nil {
		return Issued{}, fmt.Errorf("issue credential: %w", err)
	}
	s.log.Info("credential issued",
		zap.String("uuid", cred.UUID),
		zap.String("subject", subject),
		zap.String("teacher", teacher))
	return Issued{
		Credential: cred,
		URL:        fmt.Sprintf("%s/api/qr/scan?qr_id=%s&token=%s", s.baseURL, cred.UUID, cred.Token),
	}, nil
}

// Check validates a presented credential against the student's own schedule
// and, on a match, marks attendance and consumes the credential. The turnout
// write and the pending->scanned transition happen in one transaction; no
// caller can observe one without the other.
func (s *Service) Check(ctx context.Context, qrUUID, token, studentID string) (Result, error) {
	var res Result
	err := s.store.InTx(ctx, func(tx Tx) error {
		cred, err := tx.LockPending(ctx, qrUUID, token)
		if err != nil {
			return err
		}
		if cred == nil {
			res = Result{Valid: false, Message: MsgInvalid}
			return nil
		}
		if s.expiry > 0 && s.now().UTC().Sub(cred.CreatedAt) > s.expiry {
			if err := tx.MarkExpired(ctx, cred.ID); err != nil {
				return err
			}
			res = Result{Valid: false, Message: MsgInvalid}
			return nil
		}
		lessons, err := tx.LessonsFor(ctx, studentID, cred.Date, cred.TimeSlot)
		if err != nil {
			return err
		}
		if len(lessons) == 0 {
			res = Result{Valid: false, Message: MsgNoLesson}
			return nil
		}
		lesson := lessons[0]
		if lesson.Subject != cred.Subject || lesson.Teacher != cred.Teacher {
			res = Result{Valid: false, Message: MsgMismatch}
			return nil
		}
		if err := tx.SetTurnout(ctx, lesson.ID, true); err != nil {
			return err
		}
		if err := tx.MarkScanned(ctx, cred.ID, studentID); err != nil {
			return err
		}
		res = Result{
			Valid:   true,
			Message: MsgAccepted,
			Subject: cred.Subject,
			Date:    cred.Date,
			Time:    cred.TimeSlot,
			Teacher: cred.Teacher,
			Group:   lesson.GroupName,
		}
		return nil
	})
	if err != nil {
		metrics.ScanResults.WithLabelValues("conflict").Inc()
		s.log.Error("scan transaction failed", zap.String("uuid", qrUUID), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	metrics.ScanResults.WithLabelValues(outcomeLabel(res)).Inc()
	if res.Valid {
		s.log.Info("credential scanned", zap.String("uuid", qrUUID), zap.String("student", studentID))
	}
	return res, nil
}

func outcomeLabel(res Result) string {
	if res.Valid {
		return "accepted"
	}
	switch res.Message {
	case MsgNoLesson:
		return "no_lesson"
	case MsgMismatch:
		return "mismatch"
	default:
		return "invalid"
	}
}
