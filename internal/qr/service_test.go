package qr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"uniportal/internal/schedule"
)

// memStore implements Store in memory. The store mutex is held for the whole
// transaction, which models the row lock: competing scans serialize, and the
// loser re-evaluates the pending predicate after the winner applied.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	creds   map[string]*Credential // by uuid
	lessons map[int64]*schedule.Entry

	failMarkScanned bool
	failSetTurnout  bool
}

func newMemStore() *memStore {
	return &memStore{
		creds:   make(map[string]*Credential),
		lessons: make(map[int64]*schedule.Entry),
	}
}

func (s *memStore) addLesson(e schedule.Entry) int64 {
	s.nextID++
	e.ID = s.nextID
	s.lessons[e.ID] = &e
	return e.ID
}

func (s *memStore) Insert(_ context.Context, cred Credential) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cred.ID = s.nextID
	c := cred
	s.creds[cred.UUID] = &c
	return cred, nil
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	for _, apply := range tx.staged {
		apply()
	}
	return nil
}

// memTx stages writes and applies them only when the transaction commits.
type memTx struct {
	store  *memStore
	staged []func()
}

func (t *memTx) LockPending(_ context.Context, uuid, token string) (*Credential, error) {
	cred, ok := t.store.creds[uuid]
	if !ok || cred.Token != token || cred.Status != StatusPending {
		return nil, nil
	}
	c := *cred
	return &c, nil
}

func (t *memTx) MarkExpired(_ context.Context, id int64) error {
	t.staged = append(t.staged, func() {
		for _, cred := range t.store.creds {
			if cred.ID == id {
				cred.Status = StatusExpired
			}
		}
	})
	return nil
}

func (t *memTx) MarkScanned(_ context.Context, id int64, studentID string) error {
	if t.store.failMarkScanned {
		return assert.AnError
	}
	t.staged = append(t.staged, func() {
		for _, cred := range t.store.creds {
			if cred.ID == id {
				cred.Status = StatusScanned
				cred.Student = studentID
			}
		}
	})
	return nil
}

func (t *memTx) LessonsFor(_ context.Context, studentID, date, timeSlot string) ([]schedule.Entry, error) {
	var res []schedule.Entry
	for _, e := range t.store.lessons {
		if e.StudentID == studentID && e.Date == date && e.TimeSlot == timeSlot {
			res = append(res, *e)
		}
	}
	return res, nil
}

func (t *memTx) SetTurnout(_ context.Context, entryID int64, turnout bool) error {
	if t.store.failSetTurnout {
		return assert.AnError
	}
	t.staged = append(t.staged, func() {
		if e, ok := t.store.lessons[entryID]; ok {
			e.Turnout = turnout
		}
	})
	return nil
}

func newTestService(store Store) *Service {
	return NewService(store, "http://localhost:8080", 2*time.Minute, zap.NewNop())
}

func issueCalculus(t *testing.T, svc *Service) Issued {
	t.Helper()
	issued, err := svc.Issue(context.Background(), "Calculus", "2024-03-15", "10:00", "Ivanov")
	require.NoError(t, err)
	return issued
}

func calculusLesson(studentID string) schedule.Entry {
	return schedule.Entry{
		StudentID: studentID,
		GroupName: "G1",
		Date:      "2024-03-15",
		TimeSlot:  "10:00",
		Subject:   "Calculus",
		Teacher:   "Ivanov",
	}
}

func TestIssue(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	issued := issueCalculus(t, svc)

	assert.Equal(t, StatusPending, issued.Credential.Status)
	assert.NotEmpty(t, issued.Credential.UUID)
	assert.NotEmpty(t, issued.Credential.Token)
	assert.NotEqual(t, issued.Credential.UUID, issued.Credential.Token)
	assert.Contains(t, issued.URL, "qr_id="+issued.Credential.UUID)
	assert.Contains(t, issued.URL, "token="+issued.Credential.Token)
}

func TestCheckAccepted(t *testing.T) {
	store := newMemStore()
	entryID := store.addLesson(calculusLesson("A"))
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	res, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Equal(t, "Calculus", res.Subject)
	assert.Equal(t, "2024-03-15", res.Date)
	assert.Equal(t, "10:00", res.Time)
	assert.Equal(t, "Ivanov", res.Teacher)
	assert.Equal(t, "G1", res.Group)

	// All three outcomes of the transaction, together.
	cred := store.creds[issued.Credential.UUID]
	assert.Equal(t, StatusScanned, cred.Status)
	assert.Equal(t, "A", cred.Student)
	assert.True(t, store.lessons[entryID].Turnout)
}

func TestCheckSecondScanRejected(t *testing.T) {
	store := newMemStore()
	store.addLesson(calculusLesson("A"))
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	first, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
	require.NoError(t, err)
	require.True(t, first.Valid)

	// Same call again: the credential is consumed, token correctness is irrelevant.
	second, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
	require.NoError(t, err)
	assert.False(t, second.Valid)
	assert.Equal(t, MsgInvalid, second.Message)
}

func TestCheckWrongTokenIndistinguishableFromUnknownID(t *testing.T) {
	store := newMemStore()
	store.addLesson(calculusLesson("A"))
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	wrongToken, err := svc.Check(context.Background(), issued.Credential.UUID, "not-the-token", "A")
	require.NoError(t, err)
	unknownID, err := svc.Check(context.Background(), "no-such-credential", issued.Credential.Token, "A")
	require.NoError(t, err)

	assert.False(t, wrongToken.Valid)
	assert.False(t, unknownID.Valid)
	assert.Equal(t, unknownID.Message, wrongToken.Message)

	// A correct id with a wrong token must not consume the credential.
	assert.Equal(t, StatusPending, store.creds[issued.Credential.UUID].Status)
}

func TestCheckNoLessonLeavesCredentialPending(t *testing.T) {
	store := newMemStore()
	store.addLesson(calculusLesson("A"))
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	// Student B has nothing at that slot.
	res, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "B")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, MsgNoLesson, res.Message)

	// The credential stays available for the right student.
	assert.Equal(t, StatusPending, store.creds[issued.Credential.UUID].Status)

	after, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
	require.NoError(t, err)
	assert.True(t, after.Valid)
}

func TestCheckLessonMismatch(t *testing.T) {
	store := newMemStore()
	lesson := calculusLesson("A")
	lesson.Teacher = "Petrov"
	store.addLesson(lesson)
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	res, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, MsgMismatch, res.Message)
	assert.Equal(t, StatusPending, store.creds[issued.Credential.UUID].Status)
}

func TestCheckLazyExpiry(t *testing.T) {
	store := newMemStore()
	store.addLesson(calculusLesson("A"))
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	svc.now = func() time.Time { return time.Now().Add(3 * time.Minute) }

	res, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, MsgInvalid, res.Message)
	assert.Equal(t, StatusExpired, store.creds[issued.Credential.UUID].Status)
	assert.False(t, store.lessons[1].Turnout)
}

func TestCheckConcurrentScansExactlyOneWins(t *testing.T) {
	store := newMemStore()
	store.addLesson(calculusLesson("A"))
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	const n = 16
	results := make(chan Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
			if assert.NoError(t, err) {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	accepted := 0
	for res := range results {
		if res.Valid {
			accepted++
		} else {
			assert.Equal(t, MsgInvalid, res.Message)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestCheckRollsBackOnCredentialWriteFailure(t *testing.T) {
	store := newMemStore()
	entryID := store.addLesson(calculusLesson("A"))
	store.failMarkScanned = true
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	_, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
	require.ErrorIs(t, err, ErrConflict)

	// Neither write is visible: no scanned credential without attendance,
	// no attendance without a scanned credential.
	assert.Equal(t, StatusPending, store.creds[issued.Credential.UUID].Status)
	assert.False(t, store.lessons[entryID].Turnout)
}

func TestCheckRollsBackOnAttendanceWriteFailure(t *testing.T) {
	store := newMemStore()
	entryID := store.addLesson(calculusLesson("A"))
	store.failSetTurnout = true
	svc := newTestService(store)
	issued := issueCalculus(t, svc)

	_, err := svc.Check(context.Background(), issued.Credential.UUID, issued.Credential.Token, "A")
	require.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, StatusPending, store.creds[issued.Credential.UUID].Status)
	assert.False(t, store.lessons[entryID].Turnout)
}

func TestTurnoutIdempotent(t *testing.T) {
	store := newMemStore()
	entryID := store.addLesson(calculusLesson("A"))

	err := store.InTx(context.Background(), func(tx Tx) error {
		return tx.SetTurnout(context.Background(), entryID, true)
	})
	require.NoError(t, err)
	first := *store.lessons[entryID]

	err = store.InTx(context.Background(), func(tx Tx) error {
		return tx.SetTurnout(context.Background(), entryID, true)
	})
	require.NoError(t, err)

	assert.Equal(t, first, *store.lessons[entryID])
}
