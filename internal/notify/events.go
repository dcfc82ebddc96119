// Package notify bridges low-level Postgres NOTIFY payloads into typed domain
// events and pushes them to the topic hub.
package notify

import (
	"encoding/json"
	"fmt"
)

// Notification channel names the listener subscribes to.
const (
	ChannelRating           = "rating_updates"
	ChannelTimetable        = "timetable_updates"
	ChannelTimetableChanges = "timetable_changes"
)

// Markers carried by the timetable_changes channel.
const (
	markerBulkDone    = "bulk_update_completed"
	markerDataUpdated = "data_updated"
)

// Event is a decoded change notification ready for fan-out. A single
// notification may map to more than one topic (a rating update reaches both
// the student's topic and the owning group's topic).
type Event interface {
	Topics() []string
	Payload() []byte
}

// RatingUpdated signals a rating-sheet change for one student.
type RatingUpdated struct {
	StudentID string `json:"student_id"`
	GroupName string `json:"group_name"`
	Subject   string `json:"subject"`
	raw       []byte
}

func (e RatingUpdated) Topics() []string {
	return []string{
		"attendance.updates.student." + e.StudentID,
		"attendance.updates.group." + e.GroupName,
	}
}

func (e RatingUpdated) Payload() []byte { return e.raw }

// TimetableUpdated signals a timetable change for one group.
type TimetableUpdated struct {
	GroupName string `json:"group_name"`
	raw       []byte
}

func (e TimetableUpdated) Topics() []string {
	return []string{"timetable.updates." + e.GroupName}
}

func (e TimetableUpdated) Payload() []byte { return e.raw }

// TimetableBulkChanged signals a dataset-wide timetable refresh. Marker is
// "full_update", "data_updated", or the raw payload when the upstream sent
// something unrecognized (forwarded best-effort rather than dropped).
type TimetableBulkChanged struct {
	Marker string
}

func (e TimetableBulkChanged) Topics() []string {
	return []string{"timetable.changes"}
}

func (e TimetableBulkChanged) Payload() []byte { return []byte(e.Marker) }

// Decode turns one notification into a typed event. Unknown channels and
// malformed payloads are errors; the caller logs and drops them.
func Decode(channel, payload string) (Event, error) {
	switch channel {
	case ChannelRating:
		var e RatingUpdated
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", channel, err)
		}
		if e.StudentID == "" || e.GroupName == "" {
			return nil, fmt.Errorf("decode %s payload: missing student_id or group_name", channel)
		}
		e.raw = []byte(payload)
		return e, nil
	case ChannelTimetable:
		var e TimetableUpdated
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", channel, err)
		}
		if e.GroupName == "" {
			return nil, fmt.Errorf("decode %s payload: missing group_name", channel)
		}
		e.raw = []byte(payload)
		return e, nil
	case ChannelTimetableChanges:
		switch payload {
		case markerBulkDone:
			return TimetableBulkChanged{Marker: "full_update"}, nil
		case markerDataUpdated:
			return TimetableBulkChanged{Marker: markerDataUpdated}, nil
		default:
			// Forward unrecognized markers as-is.
			return TimetableBulkChanged{Marker: payload}, nil
		}
	default:
		return nil, fmt.Errorf("unknown notification channel %q", channel)
	}
}
