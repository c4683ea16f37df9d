package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mediahaus/studiocrm/pkg/metrics"
	"github.com/mediahaus/studiocrm/pkg/models"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

//go:embed migrations
var migrations embed.FS

const retries = 3

type Store struct {
	log *logrus.Entry
	db  *sqlx.DB
}

var (
	ErrEventNotFound         = fmt.Errorf("event not found")
	ErrTransactionNotFound   = fmt.Errorf("transaction not found")
	ErrInvoiceNotFound       = fmt.Errorf("invoice not found")
	ErrPortalAccountNotFound = fmt.Errorf("portal account not found")
	// ErrEventConflict is returned by the guarded event writes when the
	// in-transaction re-check finds an overlapping booking.
	ErrEventConflict = fmt.Errorf("event conflicts with an existing booking")
)

func NewStore(ctx context.Context, log *logrus.Logger, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{
		log: log.WithField("component", "pgstore"),
		db:  db,
	}, nil
}

func (s *Store) Migrate(direction migrate.MigrationDirection) error {
	assetDir := func() func(string) ([]string, error) {
		return func(path string) ([]string, error) {
			dirEntry, er := migrations.ReadDir(path)
			if er != nil {
				return nil, er
			}
			entries := make([]string, 0)
			for _, e := range dirEntry {
				entries = append(entries, e.Name())
			}

			return entries, nil
		}
	}()
	asset := migrate.AssetMigrationSource{
		Asset:    migrations.ReadFile,
		AssetDir: assetDir,
		Dir:      "migrations",
	}
	_, err := migrate.Exec(s.db.DB, "postgres", asset, direction)
	return err
}

func (s *Store) observe(method string, started time.Time, err *error) {
	metrics.PgDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil && *err != nil {
		metrics.PgErrCount.WithLabelValues(method).Inc()
	}
}

// eventRow carries the aggregated attendee ids as a comma string so the
// join result scans through database/sql without array support.
type eventRow struct {
	ID          int       `db:"id"`
	Title       string    `db:"title"`
	Notes       string    `db:"notes"`
	StartTime   time.Time `db:"start_at"`
	EndTime     time.Time `db:"end_at"`
	ProjectID   *int      `db:"project_id"`
	AttendeeIDs string    `db:"attendee_ids"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r eventRow) toEvent() (models.Event, error) {
	attendees, err := models.ParseIDs(r.AttendeeIDs)
	if err != nil {
		return models.Event{}, fmt.Errorf("err parsing attendee ids for event %d: %w", r.ID, err)
	}
	return models.Event{
		ID:        r.ID,
		Title:     r.Title,
		Notes:     r.Notes,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		ProjectID: r.ProjectID,
		Attendees: attendees,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

const eventColumns = `
e.id, e.title, e.notes, e.start_at, e.end_at, e.project_id, e.created_at, e.updated_at,
COALESCE((SELECT string_agg(a.user_id::text, ',' ORDER BY a.user_id)
          FROM event_attendees a WHERE a.event_id = e.id), '') AS attendee_ids`

func rowsToEvents(rows []eventRow) ([]models.Event, error) {
	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *Store) GetEvents(ctx context.Context) ([]models.Event, error) {
	var rows []eventRow
	query := `SELECT ` + eventColumns + ` FROM events e ORDER BY e.start_at;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &rows, query); err != nil {
			continue
		}
		return rowsToEvents(rows)
	}
	return nil, fmt.Errorf("err getting events: %w", err)
}

func (s *Store) GetEvent(ctx context.Context, id int) (models.Event, error) {
	var row eventRow
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = $1;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &row, query, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Event{}, ErrEventNotFound
		case err != nil:
			continue
		}
		return row.toEvent()
	}
	return models.Event{}, fmt.Errorf("err getting event %d: %w", id, err)
}

// EventsForAttendees returns events overlapping the half-open window
// [from, to) that include at least one of the given attendees, ordered by
// start time. It feeds the conflict checker, which re-applies the overlap
// predicate on the returned rows.
func (s *Store) EventsForAttendees(ctx context.Context, attendees []int, from, to time.Time) (events []models.Event, err error) {
	defer s.observe("EventsForAttendees", time.Now(), &err)
	if len(attendees) == 0 {
		return []models.Event{}, nil
	}
	query, args, err := sqlx.In(`
SELECT `+eventColumns+`
FROM events e
WHERE e.start_at < ? AND e.end_at > ?
  AND EXISTS (SELECT 1 FROM event_attendees a WHERE a.event_id = e.id AND a.user_id IN (?))
ORDER BY e.start_at;`, to, from, attendees)
	if err != nil {
		return nil, fmt.Errorf("err building attendee query: %w", err)
	}
	query = s.db.Rebind(query)
	var rows []eventRow
	if err = s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("err getting events for attendees: %w", err)
	}
	return rowsToEvents(rows)
}

// CreateEvent inserts the event and its attendees, then re-checks for an
// overlapping booking inside the same transaction. A concurrent booking
// that slipped past the caller's read-side check rolls back with
// ErrEventConflict.
func (s *Store) CreateEvent(ctx context.Context, event models.Event) (created models.Event, err error) {
	defer s.observe("CreateEvent", time.Now(), &err)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Event{}, fmt.Errorf("err starting tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Warnf("err rolling back create event: %v", rbErr)
			}
		}
	}()
	var id int
	query := `
INSERT INTO events (title, notes, start_at, end_at, project_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id;`
	if err = tx.QueryRowxContext(ctx, query, event.Title, event.Notes, event.StartTime, event.EndTime, event.ProjectID).Scan(&id); err != nil {
		return models.Event{}, fmt.Errorf("err creating event: %w", err)
	}
	if err = insertAttendees(ctx, tx, id, event.Attendees); err != nil {
		return models.Event{}, err
	}
	if err = checkOverlapInTx(ctx, tx, id, event); err != nil {
		return models.Event{}, err
	}
	var row eventRow
	if err = tx.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1;`, id); err != nil {
		return models.Event{}, fmt.Errorf("err reading created event: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return models.Event{}, fmt.Errorf("err committing event: %w", err)
	}
	return row.toEvent()
}

func (s *Store) UpdateEvent(ctx context.Context, id int, event models.Event) (updated models.Event, err error) {
	defer s.observe("UpdateEvent", time.Now(), &err)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Event{}, fmt.Errorf("err starting tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Warnf("err rolling back update event: %v", rbErr)
			}
		}
	}()
	query := `
UPDATE events
SET title = $2,
    notes = $3,
    start_at = $4,
    end_at = $5,
    project_id = $6,
    updated_at = now()
WHERE id = $1
RETURNING id;`
	var updatedID int
	err = tx.QueryRowxContext(ctx, query, id, event.Title, event.Notes, event.StartTime, event.EndTime, event.ProjectID).Scan(&updatedID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = ErrEventNotFound
		return models.Event{}, err
	case err != nil:
		return models.Event{}, fmt.Errorf("err updating event %d: %w", id, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM event_attendees WHERE event_id = $1;`, id); err != nil {
		return models.Event{}, fmt.Errorf("err clearing attendees for event %d: %w", id, err)
	}
	if err = insertAttendees(ctx, tx, id, event.Attendees); err != nil {
		return models.Event{}, err
	}
	if err = checkOverlapInTx(ctx, tx, id, event); err != nil {
		return models.Event{}, err
	}
	var row eventRow
	if err = tx.GetContext(ctx, &row, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1;`, id); err != nil {
		return models.Event{}, fmt.Errorf("err reading updated event: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return models.Event{}, fmt.Errorf("err committing event update: %w", err)
	}
	return row.toEvent()
}

func (s *Store) DeleteEvent(ctx context.Context, id int) (models.Event, error) {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	if _, err = s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1;`, id); err != nil {
		return models.Event{}, fmt.Errorf("err deleting event %d: %w", id, err)
	}
	return event, nil
}

func insertAttendees(ctx context.Context, tx *sqlx.Tx, eventID int, attendees []int) error {
	for _, userID := range attendees {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_attendees (event_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING;`,
			eventID, userID); err != nil {
			return fmt.Errorf("err adding attendee %d to event %d: %w", userID, eventID, err)
		}
	}
	return nil
}

func checkOverlapInTx(ctx context.Context, tx *sqlx.Tx, eventID int, event models.Event) error {
	if len(event.Attendees) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
SELECT count(*)
FROM events e
WHERE e.id <> ?
  AND e.start_at < ? AND e.end_at > ?
  AND EXISTS (SELECT 1 FROM event_attendees a WHERE a.event_id = e.id AND a.user_id IN (?));`,
		eventID, event.EndTime, event.StartTime, event.Attendees)
	if err != nil {
		return fmt.Errorf("err building overlap query: %w", err)
	}
	query = tx.Rebind(query)
	var cnt int
	if err = tx.GetContext(ctx, &cnt, query, args...); err != nil {
		return fmt.Errorf("err checking overlap: %w", err)
	}
	if cnt > 0 {
		return ErrEventConflict
	}
	return nil
}

// TransactionFilter is a typed query filter; empty fields are skipped
// instead of being assembled into a dynamic filter object.
type TransactionFilter struct {
	From         time.Time
	To           time.Time
	Kind         models.TransactionKind
	Category     string
	ProjectID    *int
	ClientID     *int
	RealizedOnly bool
}

func (f TransactionFilter) build() (string, []interface{}) {
	where := []string{`occurred_on >= $1`, `occurred_on < $2`}
	args := []interface{}{f.From, f.To}
	if f.Kind != "" {
		args = append(args, f.Kind)
		where = append(where, fmt.Sprintf(`kind = $%d`, len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf(`category = $%d`, len(args)))
	}
	if f.ProjectID != nil {
		args = append(args, *f.ProjectID)
		where = append(where, fmt.Sprintf(`project_id = $%d`, len(args)))
	}
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		where = append(where, fmt.Sprintf(`client_id = $%d`, len(args)))
	}
	if f.RealizedOnly {
		where = append(where, `status IN ('approved', 'paid')`)
	}
	return `SELECT * FROM transactions WHERE ` + strings.Join(where, ` AND `) + ` ORDER BY occurred_on;`, args
}

func (s *Store) TransactionsInRange(ctx context.Context, filter TransactionFilter) (rows []models.Transaction, err error) {
	defer s.observe("TransactionsInRange", time.Now(), &err)
	query, args := filter.build()
	var txs []models.Transaction
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &txs, query, args...); err != nil {
			continue
		}
		return txs, nil
	}
	return nil, fmt.Errorf("err getting transactions: %w", err)
}

func (s *Store) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	var created models.Transaction
	query := `
INSERT INTO transactions (kind, amount, occurred_on, category, project_id, client_id, status, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.GetContext(ctx, &created, query,
			t.Kind, t.Amount, t.Date, t.Category, t.ProjectID, t.ClientID, t.Status, t.Notes); err != nil {
			continue
		}
		return created, nil
	}
	return models.Transaction{}, fmt.Errorf("err creating transaction: %w", err)
}

func (s *Store) GetTransaction(ctx context.Context, id int) (models.Transaction, error) {
	var t models.Transaction
	query := `SELECT * FROM transactions WHERE id = $1;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &t, query, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Transaction{}, ErrTransactionNotFound
		case err != nil:
			continue
		}
		return t, nil
	}
	return models.Transaction{}, fmt.Errorf("err getting transaction %d: %w", id, err)
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id int, status models.TransactionStatus) (models.Transaction, error) {
	var t models.Transaction
	query := `
UPDATE transactions
SET status = $2,
    updated_at = now()
WHERE id = $1
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &t, query, id, status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Transaction{}, ErrTransactionNotFound
		case err != nil:
			continue
		}
		return t, nil
	}
	return models.Transaction{}, fmt.Errorf("err updating transaction %d: %w", id, err)
}

func (s *Store) DeleteTransaction(ctx context.Context, id int) (models.Transaction, error) {
	var t models.Transaction
	query := `
DELETE FROM transactions
WHERE id = $1
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &t, query, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Transaction{}, ErrTransactionNotFound
		case err != nil:
			continue
		}
		return t, nil
	}
	return models.Transaction{}, fmt.Errorf("err deleting transaction %d: %w", id, err)
}

func (s *Store) CreateInvoice(ctx context.Context, inv models.Invoice) (models.Invoice, error) {
	var created models.Invoice
	query := `
INSERT INTO invoices (client_id, number, amount, issued_at, due_at, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.GetContext(ctx, &created, query,
			inv.ClientID, inv.Number, inv.Amount, inv.IssuedAt, inv.DueAt, inv.Status); err != nil {
			continue
		}
		return created, nil
	}
	return models.Invoice{}, fmt.Errorf("err creating invoice: %w", err)
}

func (s *Store) GetInvoice(ctx context.Context, id int) (models.Invoice, error) {
	var inv models.Invoice
	query := `SELECT * FROM invoices WHERE id = $1;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &inv, query, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Invoice{}, ErrInvoiceNotFound
		case err != nil:
			continue
		}
		return inv, nil
	}
	return models.Invoice{}, fmt.Errorf("err getting invoice %d: %w", id, err)
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, id int, status models.InvoiceStatus) (models.Invoice, error) {
	var inv models.Invoice
	query := `
UPDATE invoices
SET status = $2,
    updated_at = now()
WHERE id = $1
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &inv, query, id, status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Invoice{}, ErrInvoiceNotFound
		case err != nil:
			continue
		}
		return inv, nil
	}
	return models.Invoice{}, fmt.Errorf("err updating invoice %d: %w", id, err)
}

// OutstandingInvoices returns unpaid, uncancelled invoices. Paid and
// cancelled rows are filtered here, before aging ever sees them.
func (s *Store) OutstandingInvoices(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	query := `
SELECT * FROM invoices
WHERE status NOT IN ('paid', 'cancelled')
ORDER BY due_at;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &invoices, query); err != nil {
			continue
		}
		return invoices, nil
	}
	return nil, fmt.Errorf("err getting outstanding invoices: %w", err)
}

func (s *Store) InvoicesDueForReminder(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	query := `
SELECT * FROM invoices
WHERE status NOT IN ('paid', 'cancelled')
  AND due_at < now()
  AND NOT notified
ORDER BY due_at;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &invoices, query); err != nil {
			continue
		}
		return invoices, nil
	}
	return nil, fmt.Errorf("err getting invoices due for reminder: %w", err)
}

func (s *Store) MarkInvoiceNotified(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE invoices SET notified = true, updated_at = now() WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("err marking invoice %d notified: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) GetProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &projects, `SELECT * FROM projects ORDER BY id;`); err != nil {
			continue
		}
		return projects, nil
	}
	return nil, fmt.Errorf("err getting projects: %w", err)
}

func (s *Store) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	var created models.Project
	query := `
INSERT INTO projects (name, client_id, budget)
VALUES ($1, $2, $3)
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.GetContext(ctx, &created, query, p.Name, p.ClientID, p.Budget); err != nil {
			continue
		}
		return created, nil
	}
	return models.Project{}, fmt.Errorf("err creating project: %w", err)
}

func (s *Store) GetClients(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &clients, `SELECT * FROM clients ORDER BY id;`); err != nil {
			continue
		}
		return clients, nil
	}
	return nil, fmt.Errorf("err getting clients: %w", err)
}

func (s *Store) CreateClient(ctx context.Context, c models.Client) (models.Client, error) {
	var created models.Client
	query := `
INSERT INTO clients (name, company, email, phone)
VALUES ($1, $2, $3, $4)
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.GetContext(ctx, &created, query, c.Name, c.Company, c.Email, c.Phone); err != nil {
			continue
		}
		return created, nil
	}
	return models.Client{}, fmt.Errorf("err creating client: %w", err)
}

func (s *Store) GetUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY id;`); err != nil {
			continue
		}
		return users, nil
	}
	return nil, fmt.Errorf("err getting users: %w", err)
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	var created models.User
	query := `
INSERT INTO users (last_name, first_name, email, phone, role, chat_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.GetContext(ctx, &created, query,
			user.LastName, user.FirstName, user.Email, user.Phone, user.Role, user.ChatID); err != nil {
			continue
		}
		return created, nil
	}
	return models.User{}, fmt.Errorf("err creating user: %w", err)
}

func (s *Store) CreatePortalAccount(ctx context.Context, account models.PortalAccount) (models.PortalAccount, error) {
	var created models.PortalAccount
	query := `
INSERT INTO portal_accounts (client_id, email, password_hash)
VALUES ($1, $2, $3)
RETURNING *;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.GetContext(ctx, &created, query, account.ClientID, account.Email, account.PasswordHash); err != nil {
			continue
		}
		return created, nil
	}
	return models.PortalAccount{}, fmt.Errorf("err creating portal account: %w", err)
}

func (s *Store) PortalAccountByEmail(ctx context.Context, email string) (models.PortalAccount, error) {
	var account models.PortalAccount
	query := `SELECT * FROM portal_accounts WHERE email = $1;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &account, query, email)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.PortalAccount{}, ErrPortalAccountNotFound
		case err != nil:
			continue
		}
		return account, nil
	}
	return models.PortalAccount{}, fmt.Errorf("err getting portal account: %w", err)
}

func (s *Store) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *Store) ResetTables(ctx context.Context, tables []string) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE TABLE `+strings.Join(tables, `, `)+` RESTART IDENTITY CASCADE`)
	return err
}
