package pgstore

import (
	"testing"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/stretchr/testify/require"
)

func TestTransactionFilterBuild(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	query, args := TransactionFilter{From: from, To: to}.build()
	require.Equal(t, `SELECT * FROM transactions WHERE occurred_on >= $1 AND occurred_on < $2 ORDER BY occurred_on;`, query)
	require.Equal(t, []interface{}{from, to}, args)

	projectID := 5
	query, args = TransactionFilter{
		From:         from,
		To:           to,
		Kind:         models.KindIncome,
		ProjectID:    &projectID,
		RealizedOnly: true,
	}.build()
	require.Contains(t, query, `kind = $3`)
	require.Contains(t, query, `project_id = $4`)
	require.Contains(t, query, `status IN ('approved', 'paid')`)
	require.Equal(t, []interface{}{from, to, models.KindIncome, 5}, args)
}

func TestEventRowToEvent(t *testing.T) {
	row := eventRow{
		ID:          3,
		Title:       "shoot",
		AttendeeIDs: "1,2,3",
	}
	event, err := row.toEvent()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, event.Attendees)

	row.AttendeeIDs = ""
	event, err = row.toEvent()
	require.NoError(t, err)
	require.Empty(t, event.Attendees)

	row.AttendeeIDs = "1,x"
	_, err = row.toEvent()
	require.Error(t, err)
}
