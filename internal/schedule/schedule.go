package schedule

import "time"

// Entry is one row of truth: a given student has a given lesson at a given
// date and time slot, with a mutable attendance flag and free-text comment.
type Entry struct {
	ID        int64     `json:"id"`
	StudentID string    `json:"student_id"`
	GroupName string    `json:"group_name"`
	Date      string    `json:"date"`
	TimeSlot  string    `json:"time"`
	Subject   string    `json:"subject"`
	Teacher   string    `json:"teacher"`
	Turnout   bool      `json:"turnout"`
	Comment   string    `json:"comment"`
	UpdatedAt time.Time `json:"updated_at"`
}
