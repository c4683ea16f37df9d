package scheduling

import (
	"testing"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 3, 15, hour, min, 0, 0, time.UTC)
}

func event(id int, start, end time.Time, attendees ...int) models.Event {
	return models.Event{ID: id, StartTime: start, EndTime: end, Attendees: attendees}
}

func TestNewWindow(t *testing.T) {
	_, err := NewWindow(at(10, 0), at(11, 0))
	require.NoError(t, err)

	_, err = NewWindow(at(11, 0), at(10, 0))
	require.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewWindow(at(10, 0), at(10, 0))
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestOverlaps(t *testing.T) {
	tc := []struct {
		name string
		a, b Window
		want bool
	}{
		{"partial", Window{at(9, 0), at(10, 0)}, Window{at(9, 30), at(10, 30)}, true},
		{"contained", Window{at(9, 0), at(12, 0)}, Window{at(10, 0), at(11, 0)}, true},
		{"identical", Window{at(9, 0), at(10, 0)}, Window{at(9, 0), at(10, 0)}, true},
		{"back to back", Window{at(9, 0), at(10, 0)}, Window{at(10, 0), at(11, 0)}, false},
		{"disjoint", Window{at(9, 0), at(10, 0)}, Window{at(12, 0), at(13, 0)}, false},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, Overlaps(c.a, c.b))
			require.Equal(t, c.want, Overlaps(c.b, c.a))
		})
	}
}

func TestCheckConflictsSharedAttendee(t *testing.T) {
	existing := []models.Event{
		event(1, at(9, 0), at(10, 0), 1, 2),
	}
	w := Window{Start: at(9, 30), End: at(10, 30)}

	conflicts := CheckConflicts(existing, w, []int{2, 3}, 0)
	require.Len(t, conflicts, 1)
	require.Equal(t, 1, conflicts[0].ID)

	conflicts = CheckConflicts(existing, w, []int{3, 4}, 0)
	require.Empty(t, conflicts)
}

func TestCheckConflictsEmptyAttendees(t *testing.T) {
	existing := []models.Event{
		event(1, at(9, 0), at(10, 0), 1, 2),
	}
	w := Window{Start: at(9, 0), End: at(10, 0)}

	conflicts := CheckConflicts(existing, w, nil, 0)
	require.NotNil(t, conflicts)
	require.Empty(t, conflicts)
}

func TestCheckConflictsExcludesSelf(t *testing.T) {
	existing := []models.Event{
		event(7, at(9, 0), at(10, 0), 1),
		event(8, at(9, 15), at(9, 45), 1),
	}
	w := Window{Start: at(9, 0), End: at(10, 30)}

	conflicts := CheckConflicts(existing, w, []int{1}, 7)
	require.Len(t, conflicts, 1)
	require.Equal(t, 8, conflicts[0].ID)
}

func TestCheckConflictsBoundaryTouch(t *testing.T) {
	existing := []models.Event{
		event(1, at(9, 0), at(10, 0), 1),
	}
	w := Window{Start: at(10, 0), End: at(11, 0)}

	conflicts := CheckConflicts(existing, w, []int{1}, 0)
	require.Empty(t, conflicts)
}

func TestCheckConflictsOrderedByStart(t *testing.T) {
	existing := []models.Event{
		event(3, at(11, 0), at(12, 0), 5),
		event(1, at(9, 0), at(10, 0), 5),
		event(2, at(10, 0), at(11, 0), 5),
	}
	w := Window{Start: at(9, 30), End: at(11, 30)}

	conflicts := CheckConflicts(existing, w, []int{5}, 0)
	require.Len(t, conflicts, 3)
	require.Equal(t, []int{conflicts[0].ID, conflicts[1].ID, conflicts[2].ID}, []int{1, 2, 3})
}
