package service

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/mediahaus/studiocrm/pkg/cache"
	"github.com/mediahaus/studiocrm/pkg/metrics"
	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/mediahaus/studiocrm/pkg/pgstore"
	"github.com/mediahaus/studiocrm/pkg/scheduling"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Notify(ctx context.Context, message string, userID int) error
}

// CalendarSource lists externally-booked events, e.g. a shared Google
// Calendar, so they can be merged into the schedule.
type CalendarSource interface {
	Events(ctx context.Context) ([]models.Event, error)
}

type Store interface {
	GetEvents(ctx context.Context) ([]models.Event, error)
	GetEvent(ctx context.Context, id int) (models.Event, error)
	EventsForAttendees(ctx context.Context, attendees []int, from, to time.Time) ([]models.Event, error)
	CreateEvent(ctx context.Context, event models.Event) (models.Event, error)
	UpdateEvent(ctx context.Context, id int, event models.Event) (models.Event, error)
	DeleteEvent(ctx context.Context, id int) (models.Event, error)

	TransactionsInRange(ctx context.Context, filter pgstore.TransactionFilter) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	GetTransaction(ctx context.Context, id int) (models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int, status models.TransactionStatus) (models.Transaction, error)
	DeleteTransaction(ctx context.Context, id int) (models.Transaction, error)

	CreateInvoice(ctx context.Context, inv models.Invoice) (models.Invoice, error)
	GetInvoice(ctx context.Context, id int) (models.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int, status models.InvoiceStatus) (models.Invoice, error)
	OutstandingInvoices(ctx context.Context) ([]models.Invoice, error)

	GetProjects(ctx context.Context) ([]models.Project, error)
	CreateProject(ctx context.Context, p models.Project) (models.Project, error)
	GetClients(ctx context.Context) ([]models.Client, error)
	CreateClient(ctx context.Context, c models.Client) (models.Client, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	CreatePortalAccount(ctx context.Context, account models.PortalAccount) (models.PortalAccount, error)
	PortalAccountByEmail(ctx context.Context, email string) (models.PortalAccount, error)
}

// ConflictError carries the events a requested booking collides with.
type ConflictError struct {
	Conflicts []models.Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schedule conflict with %d event(s)", len(e.Conflicts))
}

type CRMService struct {
	log      *logrus.Entry
	store    Store
	cache    cache.Store
	notifier Notifier
	signKey  *rsa.PrivateKey
	tokenTTL time.Duration
}

func NewCRMService(log *logrus.Logger, store Store, cacheStore cache.Store, notifier Notifier, signKey *rsa.PrivateKey) *CRMService {
	s := CRMService{
		log:      log.WithField("component", "service"),
		store:    store,
		cache:    cacheStore,
		notifier: notifier,
		signKey:  signKey,
		tokenTTL: 24 * time.Hour,
	}
	return &s
}

type ConflictQuery struct {
	Start          time.Time
	End            time.Time
	Attendees      []int
	ExcludeEventID int
}

// CheckConflicts answers whether the candidate window collides with any
// existing booking sharing an attendee. A non-empty result is a normal
// outcome, not an error; translating it into a rejection is the caller's
// job.
func (s *CRMService) CheckConflicts(ctx context.Context, q ConflictQuery) ([]models.Event, error) {
	w, err := scheduling.NewWindow(q.Start, q.End)
	if err != nil {
		return nil, err
	}
	if len(q.Attendees) == 0 {
		return []models.Event{}, nil
	}
	candidates, err := s.store.EventsForAttendees(ctx, q.Attendees, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("err getting candidate events from store: %w", err)
	}
	return scheduling.CheckConflicts(candidates, w, q.Attendees, q.ExcludeEventID), nil
}

func (s *CRMService) GetEvents(ctx context.Context) ([]models.Event, error) {
	events, err := s.store.GetEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("err getting events from store: %w", err)
	}
	return events, nil
}

func (s *CRMService) GetEvent(ctx context.Context, id int) (models.Event, error) {
	return s.store.GetEvent(ctx, id)
}

func (s *CRMService) CreateEvent(ctx context.Context, req models.EventRequest) (models.Event, error) {
	event, err := eventFromRequest(models.Event{}, req)
	if err != nil {
		return models.Event{}, err
	}
	conflicts, err := s.CheckConflicts(ctx, ConflictQuery{
		Start:     event.StartTime,
		End:       event.EndTime,
		Attendees: event.Attendees,
	})
	if err != nil {
		return models.Event{}, err
	}
	if len(conflicts) > 0 {
		metrics.ConflictsDetected.Inc()
		return models.Event{}, &ConflictError{Conflicts: conflicts}
	}
	created, err := s.store.CreateEvent(ctx, event)
	if err != nil {
		return models.Event{}, fmt.Errorf("err creating event: %w", err)
	}
	s.notifyAttendees(ctx, created, "booked")
	return created, nil
}

func (s *CRMService) UpdateEvent(ctx context.Context, id int, req models.EventRequest) (models.Event, error) {
	existing, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	event, err := eventFromRequest(existing, req)
	if err != nil {
		return models.Event{}, err
	}
	conflicts, err := s.CheckConflicts(ctx, ConflictQuery{
		Start:          event.StartTime,
		End:            event.EndTime,
		Attendees:      event.Attendees,
		ExcludeEventID: id,
	})
	if err != nil {
		return models.Event{}, err
	}
	if len(conflicts) > 0 {
		metrics.ConflictsDetected.Inc()
		return models.Event{}, &ConflictError{Conflicts: conflicts}
	}
	updated, err := s.store.UpdateEvent(ctx, id, event)
	if err != nil {
		return models.Event{}, fmt.Errorf("err updating event %d: %w", id, err)
	}
	s.notifyAttendees(ctx, updated, "rescheduled")
	return updated, nil
}

func (s *CRMService) DeleteEvent(ctx context.Context, id int) (models.Event, error) {
	return s.store.DeleteEvent(ctx, id)
}

// eventFromRequest merges the request over base, then validates the
// resulting window. On create, base is the zero event and start/end are
// required; on update, omitted fields keep their stored values.
func eventFromRequest(base models.Event, req models.EventRequest) (models.Event, error) {
	if req.Title != nil {
		base.Title = *req.Title
	}
	if req.Notes != nil {
		base.Notes = *req.Notes
	}
	if req.StartTime != nil {
		base.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		base.EndTime = *req.EndTime
	}
	if req.ProjectID != nil {
		base.ProjectID = req.ProjectID
	}
	if req.Attendees != nil {
		base.Attendees = req.Attendees
	}
	if _, err := scheduling.NewWindow(base.StartTime, base.EndTime); err != nil {
		return models.Event{}, err
	}
	return base, nil
}

func (s *CRMService) notifyAttendees(ctx context.Context, event models.Event, action string) {
	msg := fmt.Sprintf("event %q %s: %s - %s",
		event.Title, action,
		event.StartTime.Format(time.RFC3339), event.EndTime.Format(time.RFC3339))
	for _, userID := range event.Attendees {
		if err := s.notifier.Notify(ctx, msg, userID); err != nil {
			s.log.Errorf("err notifying attendee %d: %v", userID, err)
		}
	}
}

// ImportCalendar copies events from an external calendar into the store.
// Imported events carry no attendees, so they never trip the conflict
// check on their own; operators attach crew afterwards.
func (s *CRMService) ImportCalendar(ctx context.Context, source CalendarSource) (int, error) {
	events, err := source.Events(ctx)
	if err != nil {
		return 0, fmt.Errorf("err listing external events: %w", err)
	}
	imported := 0
	for _, e := range events {
		if !e.StartTime.Before(e.EndTime) {
			s.log.Warnf("skipping external event %q with empty window", e.Title)
			continue
		}
		e.Attendees = nil
		if _, err := s.store.CreateEvent(ctx, e); err != nil {
			return imported, fmt.Errorf("err importing event %q: %w", e.Title, err)
		}
		imported++
	}
	return imported, nil
}

func (s *CRMService) CreateTransaction(ctx context.Context, req models.TransactionRequest) (models.Transaction, error) {
	if req.Kind == nil || req.Amount == nil || req.Date == nil {
		return models.Transaction{}, fmt.Errorf("kind, amount and date are required")
	}
	t := models.Transaction{
		Kind:   *req.Kind,
		Amount: *req.Amount,
		Date:   *req.Date,
		Status: models.StatusPending,
	}
	if req.Category != nil {
		t.Category = *req.Category
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Notes != nil {
		t.Notes = *req.Notes
	}
	t.ProjectID = req.ProjectID
	t.ClientID = req.ClientID
	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("err creating transaction: %w", err)
	}
	return created, nil
}

func (s *CRMService) GetTransaction(ctx context.Context, id int) (models.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *CRMService) UpdateTransactionStatus(ctx context.Context, id int, status models.TransactionStatus) (models.Transaction, error) {
	return s.store.UpdateTransactionStatus(ctx, id, status)
}

func (s *CRMService) DeleteTransaction(ctx context.Context, id int) (models.Transaction, error) {
	return s.store.DeleteTransaction(ctx, id)
}

func (s *CRMService) ListTransactions(ctx context.Context, filter pgstore.TransactionFilter) ([]models.Transaction, error) {
	return s.store.TransactionsInRange(ctx, filter)
}

func (s *CRMService) CreateInvoice(ctx context.Context, req models.InvoiceRequest) (models.Invoice, error) {
	if req.ClientID == nil || req.Amount == nil || req.DueAt == nil {
		return models.Invoice{}, fmt.Errorf("clientId, amount and dueAt are required")
	}
	inv := models.Invoice{
		ClientID: *req.ClientID,
		Amount:   *req.Amount,
		IssuedAt: time.Now(),
		DueAt:    *req.DueAt,
		Status:   models.InvoiceDraft,
	}
	if req.Number != nil {
		inv.Number = *req.Number
	}
	if req.IssuedAt != nil {
		inv.IssuedAt = *req.IssuedAt
	}
	if req.Status != nil {
		inv.Status = *req.Status
	}
	created, err := s.store.CreateInvoice(ctx, inv)
	if err != nil {
		return models.Invoice{}, fmt.Errorf("err creating invoice: %w", err)
	}
	return created, nil
}

func (s *CRMService) GetInvoice(ctx context.Context, id int) (models.Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

func (s *CRMService) UpdateInvoiceStatus(ctx context.Context, id int, status models.InvoiceStatus) (models.Invoice, error) {
	return s.store.UpdateInvoiceStatus(ctx, id, status)
}

func (s *CRMService) GetProjects(ctx context.Context) ([]models.Project, error) {
	return s.store.GetProjects(ctx)
}

func (s *CRMService) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	return s.store.CreateProject(ctx, p)
}

func (s *CRMService) GetClients(ctx context.Context) ([]models.Client, error) {
	return s.store.GetClients(ctx)
}

func (s *CRMService) CreateClient(ctx context.Context, c models.Client) (models.Client, error) {
	return s.store.CreateClient(ctx, c)
}

func (s *CRMService) GetUsers(ctx context.Context) ([]models.User, error) {
	return s.store.GetUsers(ctx)
}

func (s *CRMService) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	return s.store.CreateUser(ctx, user)
}

func (s *CRMService) Notify(ctx context.Context, message string, userID int) error {
	return s.notifier.Notify(ctx, message, userID)
}
