package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/mediahaus/studiocrm/pkg/cache"
	"github.com/mediahaus/studiocrm/pkg/finance"
	"github.com/mediahaus/studiocrm/pkg/logger"
	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/mediahaus/studiocrm/pkg/scheduling"
	"github.com/mediahaus/studiocrm/pkg/service"
	"github.com/mediahaus/studiocrm/pkg/service/servicetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, message string, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	store    *servicetest.Store
	notifier *recordingNotifier
	app      *service.CRMService
	signKey  *rsa.PrivateKey
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupSuite() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.signKey = key
}

func (s *ServiceSuite) SetupTest() {
	s.store = servicetest.New()
	s.notifier = &recordingNotifier{}
	s.app = service.NewCRMService(logger.NewLogger(), s.store, cache.NewMemory(), s.notifier, s.signKey)
}

func eventRequest(title string, start, end time.Time, attendees ...int) models.EventRequest {
	return models.EventRequest{
		Title:     &title,
		StartTime: &start,
		EndTime:   &end,
		Attendees: attendees,
	}
}

func (s *ServiceSuite) day(hour, min int) time.Time {
	return time.Date(2024, 3, 15, hour, min, 0, 0, time.UTC)
}

func (s *ServiceSuite) TestCreateEvent() {
	ctx := context.Background()

	created, err := s.app.CreateEvent(ctx, eventRequest("shoot", s.day(9, 0), s.day(11, 0), 1, 2))
	s.Require().NoError(err)
	s.Require().NotZero(created.ID)
	s.Require().Equal([]int{1, 2}, created.Attendees)
	s.Require().Len(s.notifier.messages, 2)
}

func (s *ServiceSuite) TestCreateEventConflict() {
	ctx := context.Background()

	first, err := s.app.CreateEvent(ctx, eventRequest("shoot", s.day(9, 0), s.day(10, 0), 1, 2))
	s.Require().NoError(err)

	_, err = s.app.CreateEvent(ctx, eventRequest("edit", s.day(9, 30), s.day(10, 30), 2, 3))
	var conflictErr *service.ConflictError
	s.Require().ErrorAs(err, &conflictErr)
	s.Require().Len(conflictErr.Conflicts, 1)
	s.Require().Equal(first.ID, conflictErr.Conflicts[0].ID)

	// disjoint crew books the same window freely
	_, err = s.app.CreateEvent(ctx, eventRequest("scout", s.day(9, 30), s.day(10, 30), 4))
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestCreateEventBoundaryTouch() {
	ctx := context.Background()

	_, err := s.app.CreateEvent(ctx, eventRequest("shoot", s.day(9, 0), s.day(10, 0), 1))
	s.Require().NoError(err)

	_, err = s.app.CreateEvent(ctx, eventRequest("edit", s.day(10, 0), s.day(11, 0), 1))
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestCreateEventInvalidWindow() {
	ctx := context.Background()

	_, err := s.app.CreateEvent(ctx, eventRequest("shoot", s.day(11, 0), s.day(9, 0), 1))
	s.Require().ErrorIs(err, scheduling.ErrInvalidWindow)
}

func (s *ServiceSuite) TestUpdateEventExcludesSelf() {
	ctx := context.Background()

	created, err := s.app.CreateEvent(ctx, eventRequest("shoot", s.day(9, 0), s.day(10, 0), 1))
	s.Require().NoError(err)

	// shifting within its own window must not conflict with itself
	newEnd := s.day(10, 30)
	updated, err := s.app.UpdateEvent(ctx, created.ID, models.EventRequest{EndTime: &newEnd})
	s.Require().NoError(err)
	s.Require().Equal(newEnd, updated.EndTime)
	s.Require().Equal("shoot", updated.Title)
}

func (s *ServiceSuite) TestCheckConflictsEmptyAttendees() {
	ctx := context.Background()

	_, err := s.app.CreateEvent(ctx, eventRequest("shoot", s.day(9, 0), s.day(10, 0), 1))
	s.Require().NoError(err)

	conflicts, err := s.app.CheckConflicts(ctx, service.ConflictQuery{
		Start: s.day(9, 0),
		End:   s.day(10, 0),
	})
	s.Require().NoError(err)
	s.Require().Empty(conflicts)
}

func (s *ServiceSuite) TestImportCalendar() {
	ctx := context.Background()

	source := calendarStub{events: []models.Event{
		{Title: "location hold", StartTime: s.day(9, 0), EndTime: s.day(17, 0), Attendees: []int{1}},
		{Title: "broken", StartTime: s.day(9, 0), EndTime: s.day(9, 0)},
	}}
	imported, err := s.app.ImportCalendar(ctx, source)
	s.Require().NoError(err)
	s.Require().Equal(1, imported)

	events, err := s.app.GetEvents(ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Require().Empty(events[0].Attendees)
}

type calendarStub struct {
	events []models.Event
}

func (c calendarStub) Events(_ context.Context) ([]models.Event, error) {
	return c.events, nil
}

func (s *ServiceSuite) TestCreateTransactionDefaults() {
	ctx := context.Background()

	kind := models.KindIncome
	amount := decimal.NewFromInt(100)
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	created, err := s.app.CreateTransaction(ctx, models.TransactionRequest{
		Kind:   &kind,
		Amount: &amount,
		Date:   &date,
	})
	s.Require().NoError(err)
	s.Require().Equal(models.StatusPending, created.Status)

	_, err = s.app.CreateTransaction(ctx, models.TransactionRequest{Kind: &kind})
	s.Require().Error(err)
}

func (s *ServiceSuite) seedIncome(amount float64, date time.Time, status models.TransactionStatus) {
	_, err := s.store.CreateTransaction(context.Background(), models.Transaction{
		Kind:   models.KindIncome,
		Amount: decimal.NewFromFloat(amount),
		Date:   date,
		Status: status,
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestRevenueTrend() {
	s.seedIncome(100, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), models.StatusPaid)
	s.seedIncome(200, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), models.StatusPaid)
	s.seedIncome(300, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), models.StatusApproved)
	s.seedIncome(999, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), models.StatusPending)
	s.seedIncome(50, time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC), models.StatusPaid)

	report, err := s.app.RevenueTrend(context.Background(), service.ReportRange{
		From:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Granularity: finance.Month,
	})
	s.Require().NoError(err)
	s.Require().Equal([]finance.PeriodTotal{
		{Period: "2024-01", Total: 100, Count: 1},
		{Period: "2024-02", Total: 200, Count: 1},
		{Period: "2024-03", Total: 300, Count: 1},
	}, report.Series)
	s.Require().Equal(600.0, report.Total)
}

func (s *ServiceSuite) TestRevenueForecast() {
	now := time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)
	s.seedIncome(100, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), models.StatusPaid)
	s.seedIncome(200, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), models.StatusPaid)
	s.seedIncome(300, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), models.StatusPaid)

	got, err := s.app.RevenueForecast(context.Background(), 3, now)
	s.Require().NoError(err)
	s.Require().Equal("increasing", got.Trend)
	s.Require().Len(got.Points, 3)
	s.Require().Equal("2024-04", got.Points[0].Period)
	s.Require().GreaterOrEqual(got.Points[0].Value, 300.0)
}

func (s *ServiceSuite) TestReceivablesAging() {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.store.CreateInvoice(ctx, models.Invoice{
		ClientID: 1,
		Amount:   decimal.NewFromInt(500),
		DueAt:    now.AddDate(0, 0, -15),
		Status:   models.InvoiceSent,
	})
	s.Require().NoError(err)
	_, err = s.store.CreateInvoice(ctx, models.Invoice{
		ClientID: 1,
		Amount:   decimal.NewFromInt(100),
		DueAt:    now.AddDate(0, 0, -15),
		Status:   models.InvoicePaid,
	})
	s.Require().NoError(err)

	buckets, err := s.app.ReceivablesAging(ctx, now)
	s.Require().NoError(err)
	s.Require().Len(buckets, 5)
	s.Require().Equal(1, buckets[1].Count)
	s.Require().Equal(500.0, buckets[1].Amount)
}

func (s *ServiceSuite) TestResolvePeriod() {
	now := time.Date(2024, 5, 15, 14, 30, 0, 0, time.UTC) // Wednesday

	rng, err := service.ResolvePeriod("today", now)
	s.Require().NoError(err)
	s.Require().Equal(time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), rng.From)
	s.Require().Equal(finance.Day, rng.Granularity)

	rng, err = service.ResolvePeriod("week", now)
	s.Require().NoError(err)
	s.Require().Equal(time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), rng.From)

	rng, err = service.ResolvePeriod("quarter", now)
	s.Require().NoError(err)
	s.Require().Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), rng.From)

	rng, err = service.ResolvePeriod("last7days", now)
	s.Require().NoError(err)
	s.Require().Equal(finance.Custom, rng.Granularity)

	_, err = service.ResolvePeriod("fortnight", now)
	s.Require().ErrorIs(err, service.ErrUnknownPeriod)
}

func (s *ServiceSuite) TestPortalAuth() {
	ctx := context.Background()

	_, err := s.app.RegisterPortalAccount(ctx, 7, "client@example.com", "s3cret")
	s.Require().NoError(err)

	_, err = s.app.PortalLogin(ctx, "client@example.com", "wrong")
	s.Require().ErrorIs(err, models.ErrInvalidCredentials)

	_, err = s.app.PortalLogin(ctx, "nobody@example.com", "s3cret")
	s.Require().ErrorIs(err, models.ErrInvalidCredentials)

	resp, err := s.app.PortalLogin(ctx, "client@example.com", "s3cret")
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Token)

	claims := models.Claims{}
	_, err = jwt.ParseWithClaims(resp.Token, &claims, func(_ *jwt.Token) (interface{}, error) {
		return &s.signKey.PublicKey, nil
	})
	s.Require().NoError(err)
	s.Require().Equal(7, claims.ClientID)
	s.Require().Equal(models.RolePortal, claims.Role)

	revoked, err := s.app.TokenRevoked(ctx, claims.ID)
	s.Require().NoError(err)
	s.Require().False(revoked)

	s.Require().NoError(s.app.PortalLogout(ctx, &claims))

	revoked, err = s.app.TokenRevoked(ctx, claims.ID)
	s.Require().NoError(err)
	s.Require().True(revoked)
}
