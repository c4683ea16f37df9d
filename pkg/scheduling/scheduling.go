package scheduling

import (
	"errors"
	"sort"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
)

var ErrInvalidWindow = errors.New("event start must be before end")

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func NewWindow(start, end time.Time) (Window, error) {
	if !start.Before(end) {
		return Window{}, ErrInvalidWindow
	}
	return Window{Start: start, End: end}, nil
}

// Overlaps reports whether two half-open windows share any instant.
// Back-to-back windows (one ending exactly when the other starts) do not
// overlap.
func Overlaps(a, b Window) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// CheckConflicts returns the events that overlap w and share at least one
// attendee with attendees, ordered by ascending start time. An event equal
// to excludeID is skipped, so reschedules never conflict with themselves.
// An empty attendee set conflicts with nothing.
func CheckConflicts(events []models.Event, w Window, attendees []int, excludeID int) []models.Event {
	conflicts := make([]models.Event, 0)
	if len(attendees) == 0 {
		return conflicts
	}
	want := make(map[int]struct{}, len(attendees))
	for _, id := range attendees {
		want[id] = struct{}{}
	}
	for _, e := range events {
		if excludeID != 0 && e.ID == excludeID {
			continue
		}
		if !Overlaps(w, Window{Start: e.StartTime, End: e.EndTime}) {
			continue
		}
		if !sharesAttendee(e.Attendees, want) {
			continue
		}
		conflicts = append(conflicts, e)
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].StartTime.Before(conflicts[j].StartTime)
	})
	return conflicts
}

func sharesAttendee(ids []int, want map[int]struct{}) bool {
	for _, id := range ids {
		if _, ok := want[id]; ok {
			return true
		}
	}
	return false
}
