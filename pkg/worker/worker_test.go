package worker

import (
	"context"
	"testing"
	"time"

	"github.com/mediahaus/studiocrm/pkg/logger"
	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	due      []models.Invoice
	notified []int
}

func (s *fakeStore) InvoicesDueForReminder(_ context.Context) ([]models.Invoice, error) {
	return s.due, nil
}

func (s *fakeStore) MarkInvoiceNotified(_ context.Context, id int) error {
	s.notified = append(s.notified, id)
	return nil
}

type fakeNotifier struct {
	messages []string
	userIDs  []int
}

func (n *fakeNotifier) Notify(_ context.Context, message string, userID int) error {
	n.messages = append(n.messages, message)
	n.userIDs = append(n.userIDs, userID)
	return nil
}

func TestRemindOverdue(t *testing.T) {
	store := &fakeStore{due: []models.Invoice{
		{
			ID:       1,
			ClientID: 7,
			Number:   "INV-001",
			Amount:   decimal.NewFromFloat(1500.50),
			DueAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			Status:   models.InvoiceSent,
		},
	}}
	notifier := &fakeNotifier{}
	w := New(logger.NewLogger(), store, notifier)

	require.NoError(t, w.remindOverdue(context.Background()))
	require.Equal(t, []int{7}, notifier.userIDs)
	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "INV-001")
	require.Contains(t, notifier.messages[0], "1500.50")
	require.Contains(t, notifier.messages[0], "2024-05-01")
	require.Equal(t, []int{1}, store.notified)
}

func TestRemindOverdueEmpty(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	w := New(logger.NewLogger(), store, notifier)

	require.NoError(t, w.remindOverdue(context.Background()))
	require.Empty(t, notifier.messages)
	require.Empty(t, store.notified)
}
