package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/sirupsen/logrus"
)

const pollInterval = time.Minute

type Store interface {
	InvoicesDueForReminder(ctx context.Context) ([]models.Invoice, error)
	MarkInvoiceNotified(ctx context.Context, id int) error
}

type Notifier interface {
	Notify(ctx context.Context, message string, userID int) error
}

// Worker polls for invoices past their due date and sends a single
// reminder per invoice.
type Worker struct {
	log      *logrus.Entry
	store    Store
	notifier Notifier
}

func New(log *logrus.Logger, store Store, notifier Notifier) *Worker {
	return &Worker{
		log:      log.WithField("component", "worker"),
		store:    store,
		notifier: notifier,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.remindOverdue(ctx); err != nil {
			return fmt.Errorf("overdue reminder pass failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pollInterval):
		}
	}
}

func (w *Worker) remindOverdue(ctx context.Context) error {
	invoices, err := w.store.InvoicesDueForReminder(ctx)
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		msg := fmt.Sprintf("invoice %s for %.2f is overdue since %s",
			inv.Number, inv.Amount.InexactFloat64(), inv.DueAt.Format("2006-01-02"))
		if err = w.notifier.Notify(ctx, msg, inv.ClientID); err != nil {
			w.log.Errorf("err notifying about invoice %d: %v", inv.ID, err)
			continue
		}
		if err = w.store.MarkInvoiceNotified(ctx, inv.ID); err != nil {
			return err
		}
	}
	return nil
}
