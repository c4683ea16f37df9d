package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const maxResults = 50

// Calendar reads upcoming events from a shared Google Calendar so
// externally-booked windows can be imported into the schedule.
type Calendar struct {
	log        *logrus.Entry
	srv        *calendar.Service
	calendarID string
}

func New(ctx context.Context, log *logrus.Logger, credentialsPath, tokenPath, calendarID string) (*Calendar, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("err reading credentials: %w", err)
	}
	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("err parsing credentials: %w", err)
	}
	token, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("err reading oauth token: %w", err)
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("err creating calendar client: %w", err)
	}
	return &Calendar{
		log:        log.WithField("component", "calendar"),
		srv:        srv,
		calendarID: calendarID,
	}, nil
}

// Events lists upcoming calendar entries mapped into the schedule shape.
// Entries without usable start or end datetimes are skipped.
func (c *Calendar) Events(_ context.Context) ([]models.Event, error) {
	t := time.Now().Format(time.RFC3339)
	events, err := c.srv.Events.List(c.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(t).
		MaxResults(maxResults).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("err listing calendar events: %w", err)
	}
	result := make([]models.Event, 0, len(events.Items))
	for _, item := range events.Items {
		if item.Start == nil || item.End == nil {
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			c.log.Warnf("skipping event %q with bad start: %v", item.Summary, err)
			continue
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			c.log.Warnf("skipping event %q with bad end: %v", item.Summary, err)
			continue
		}
		result = append(result, models.Event{
			Title:     item.Summary,
			Notes:     item.Description,
			StartTime: start,
			EndTime:   end,
		})
	}
	return result, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
