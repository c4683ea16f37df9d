// Package servicetest provides an in-memory Store for exercising the
// service and REST layers without postgres.
package servicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/mediahaus/studiocrm/pkg/pgstore"
)

type Store struct {
	mu             sync.Mutex
	nextID         int
	events         map[int]models.Event
	transactions   map[int]models.Transaction
	invoices       map[int]models.Invoice
	projects       map[int]models.Project
	clients        map[int]models.Client
	users          map[int]models.User
	portalAccounts map[int]models.PortalAccount
}

func New() *Store {
	return &Store{
		events:         make(map[int]models.Event),
		transactions:   make(map[int]models.Transaction),
		invoices:       make(map[int]models.Invoice),
		projects:       make(map[int]models.Project),
		clients:        make(map[int]models.Client),
		users:          make(map[int]models.User),
		portalAccounts: make(map[int]models.PortalAccount),
	}
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

func (s *Store) GetEvents(_ context.Context) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]models.Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartTime.Before(events[j].StartTime) })
	return events, nil
}

func (s *Store) GetEvent(_ context.Context, id int) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return models.Event{}, pgstore.ErrEventNotFound
	}
	return e, nil
}

func (s *Store) EventsForAttendees(_ context.Context, attendees []int, from, to time.Time) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int]struct{}, len(attendees))
	for _, id := range attendees {
		want[id] = struct{}{}
	}
	events := make([]models.Event, 0)
	for _, e := range s.events {
		if !e.StartTime.Before(to) || !from.Before(e.EndTime) {
			continue
		}
		for _, id := range e.Attendees {
			if _, ok := want[id]; ok {
				events = append(events, e)
				break
			}
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartTime.Before(events[j].StartTime) })
	return events, nil
}

func (s *Store) CreateEvent(_ context.Context, event models.Event) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.id()
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	s.events[event.ID] = event
	return event, nil
}

func (s *Store) UpdateEvent(_ context.Context, id int, event models.Event) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.events[id]
	if !ok {
		return models.Event{}, pgstore.ErrEventNotFound
	}
	event.ID = id
	event.CreatedAt = existing.CreatedAt
	event.UpdatedAt = time.Now()
	s.events[id] = event
	return event, nil
}

func (s *Store) DeleteEvent(_ context.Context, id int) (models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return models.Event{}, pgstore.ErrEventNotFound
	}
	delete(s.events, id)
	return e, nil
}

func (s *Store) TransactionsInRange(_ context.Context, filter pgstore.TransactionFilter) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]models.Transaction, 0)
	for _, t := range s.transactions {
		if t.Date.Before(filter.From) || !t.Date.Before(filter.To) {
			continue
		}
		if filter.Kind != "" && t.Kind != filter.Kind {
			continue
		}
		if filter.Category != "" && t.Category != filter.Category {
			continue
		}
		if filter.ProjectID != nil && (t.ProjectID == nil || *t.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.ClientID != nil && (t.ClientID == nil || *t.ClientID != *filter.ClientID) {
			continue
		}
		if filter.RealizedOnly && !t.Realized() {
			continue
		}
		rows = append(rows, t)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

func (s *Store) CreateTransaction(_ context.Context, t models.Transaction) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id int) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return models.Transaction{}, pgstore.ErrTransactionNotFound
	}
	return t, nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id int, status models.TransactionStatus) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return models.Transaction{}, pgstore.ErrTransactionNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	s.transactions[id] = t
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return models.Transaction{}, pgstore.ErrTransactionNotFound
	}
	delete(s.transactions, id)
	return t, nil
}

func (s *Store) CreateInvoice(_ context.Context, inv models.Invoice) (models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.ID = s.id()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *Store) GetInvoice(_ context.Context, id int) (models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return models.Invoice{}, pgstore.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Store) UpdateInvoiceStatus(_ context.Context, id int, status models.InvoiceStatus) (models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return models.Invoice{}, pgstore.ErrInvoiceNotFound
	}
	inv.Status = status
	inv.UpdatedAt = time.Now()
	s.invoices[id] = inv
	return inv, nil
}

func (s *Store) OutstandingInvoices(_ context.Context) ([]models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoices := make([]models.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.Outstanding() {
			invoices = append(invoices, inv)
		}
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].DueAt.Before(invoices[j].DueAt) })
	return invoices, nil
}

func (s *Store) InvoicesDueForReminder(_ context.Context) ([]models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoices := make([]models.Invoice, 0)
	now := time.Now()
	for _, inv := range s.invoices {
		if inv.Outstanding() && inv.DueAt.Before(now) && !inv.Notified {
			invoices = append(invoices, inv)
		}
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].DueAt.Before(invoices[j].DueAt) })
	return invoices, nil
}

func (s *Store) MarkInvoiceNotified(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return pgstore.ErrInvoiceNotFound
	}
	inv.Notified = true
	s.invoices[id] = inv
	return nil
}

func (s *Store) GetProjects(_ context.Context) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	projects := make([]models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

func (s *Store) CreateProject(_ context.Context, p models.Project) (models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.projects[p.ID] = p
	return p, nil
}

func (s *Store) GetClients(_ context.Context) ([]models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clients := make([]models.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

func (s *Store) CreateClient(_ context.Context, c models.Client) (models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) GetUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = s.id()
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) CreatePortalAccount(_ context.Context, account models.PortalAccount) (models.PortalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account.ID = s.id()
	s.portalAccounts[account.ID] = account
	return account, nil
}

func (s *Store) PortalAccountByEmail(_ context.Context, email string) (models.PortalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.portalAccounts {
		if account.Email == email {
			return account, nil
		}
	}
	return models.PortalAccount{}, pgstore.ErrPortalAccountNotFound
}
