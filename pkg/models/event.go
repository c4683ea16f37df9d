package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type Event struct {
	ID        int       `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Notes     string    `json:"notes" db:"notes"`
	StartTime time.Time `json:"startTime" db:"start_at"`
	EndTime   time.Time `json:"endTime" db:"end_at"`
	ProjectID *int      `json:"projectId" db:"project_id"`
	Attendees []int     `json:"attendees" db:"-"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type EventRequest struct {
	Title     *string    `json:"title"`
	Notes     *string    `json:"notes"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	ProjectID *int       `json:"projectId"`
	Attendees []int      `json:"attendees"`
}

// IDList accepts either a JSON array of numbers or a comma-separated
// string ("1,2,3"), which is how attendee lists arrive from the portal.
type IDList []int

func (l *IDList) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		ids, err := ParseIDs(unquoted)
		if err != nil {
			return err
		}
		*l = ids
		return nil
	}
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*l = ids
	return nil
}

// ParseIDs parses a comma-separated id string, skipping empty segments.
func ParseIDs(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
