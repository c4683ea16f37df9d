package rest

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mediahaus/studiocrm/pkg/cache"
	"github.com/mediahaus/studiocrm/pkg/finance"
	"github.com/mediahaus/studiocrm/pkg/logger"
	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/mediahaus/studiocrm/pkg/service"
	"github.com/mediahaus/studiocrm/pkg/service/servicetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type nopNotifier struct{}

func (nopNotifier) Notify(_ context.Context, _ string, _ int) error { return nil }

type RestSuite struct {
	suite.Suite
	store   *servicetest.Store
	app     *service.CRMService
	signKey *rsa.PrivateKey
	srv     *httptest.Server
}

func TestRestSuite(t *testing.T) {
	suite.Run(t, new(RestSuite))
}

func (s *RestSuite) SetupSuite() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	s.signKey = key
}

func (s *RestSuite) SetupTest() {
	log := logger.NewLogger()
	s.store = servicetest.New()
	s.app = service.NewCRMService(log, s.store, cache.NewMemory(), nopNotifier{}, s.signKey)
	handler := NewServer(log, s.app, ":0", "test", &s.signKey.PublicKey)
	s.srv = httptest.NewServer(handler.routes())
}

func (s *RestSuite) TearDownTest() {
	s.srv.Close()
}

func (s *RestSuite) sendRequest(method, path string, body interface{}, token string, dest interface{}) *http.Response {
	s.T().Helper()
	var reqBody bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &reqBody)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.srv.Client().Do(req)
	s.Require().NoError(err)
	defer func() {
		s.Require().NoError(resp.Body.Close())
	}()
	if dest != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(dest))
	}
	return resp
}

func (s *RestSuite) seedEvent(title string, start, end time.Time, attendees ...int) models.Event {
	s.T().Helper()
	event, err := s.store.CreateEvent(context.Background(), models.Event{
		Title:     title,
		StartTime: start,
		EndTime:   end,
		Attendees: attendees,
	})
	s.Require().NoError(err)
	return event
}

func day(hour int) time.Time {
	return time.Date(2024, 3, 15, hour, 0, 0, 0, time.UTC)
}

func (s *RestSuite) TestVersion() {
	resp, err := s.srv.Client().Get(s.srv.URL + "/version")
	s.Require().NoError(err)
	defer func() {
		s.Require().NoError(resp.Body.Close())
	}()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
}

func (s *RestSuite) TestCheckConflicts() {
	existing := s.seedEvent("shoot", day(9), day(10), 1, 2)

	var conflicts []models.Event
	resp := s.sendRequest(http.MethodPost, "/api/v1/events/conflicts", map[string]interface{}{
		"start_time": day(9).Add(30 * time.Minute),
		"end_time":   day(10).Add(30 * time.Minute),
		"attendees":  []int{2, 3},
	}, "", &conflicts)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Len(conflicts, 1)
	s.Require().Equal(existing.ID, conflicts[0].ID)
}

func (s *RestSuite) TestCheckConflictsCommaString() {
	s.seedEvent("shoot", day(9), day(10), 1, 2)

	var conflicts []models.Event
	resp := s.sendRequest(http.MethodPost, "/api/v1/events/conflicts", map[string]interface{}{
		"start_time": day(9),
		"end_time":   day(10),
		"attendees":  "2, 3",
	}, "", &conflicts)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Len(conflicts, 1)
}

func (s *RestSuite) TestCheckConflictsInvalidWindow() {
	var errResp ErrorResponse
	resp := s.sendRequest(http.MethodPost, "/api/v1/events/conflicts", map[string]interface{}{
		"start_time": day(10),
		"end_time":   day(9),
		"attendees":  []int{1},
	}, "", &errResp)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	s.Require().NotEmpty(errResp.Error)
}

func (s *RestSuite) TestCreateEvent() {
	var created models.Event
	resp := s.sendRequest(http.MethodPost, "/api/v1/events/", map[string]interface{}{
		"title":     "shoot",
		"startTime": day(9),
		"endTime":   day(11),
		"attendees": []int{1, 2},
	}, "", &created)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Require().NotZero(created.ID)
}

func (s *RestSuite) TestCreateEventConflict() {
	existing := s.seedEvent("shoot", day(9), day(10), 1, 2)

	var conflictResp ConflictResponse
	resp := s.sendRequest(http.MethodPost, "/api/v1/events/", map[string]interface{}{
		"title":     "edit",
		"startTime": day(9).Add(30 * time.Minute),
		"endTime":   day(10).Add(30 * time.Minute),
		"attendees": []int{2},
	}, "", &conflictResp)
	s.Require().Equal(http.StatusConflict, resp.StatusCode)
	s.Require().Len(conflictResp.Conflicts, 1)
	s.Require().Equal(existing.ID, conflictResp.Conflicts[0].ID)
	s.Require().NotEmpty(conflictResp.Error)
}

func (s *RestSuite) TestGetEventNotFound() {
	var errResp ErrorResponse
	resp := s.sendRequest(http.MethodGet, "/api/v1/events/999", nil, "", &errResp)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RestSuite) seedIncome(amount float64, date time.Time) {
	_, err := s.store.CreateTransaction(context.Background(), models.Transaction{
		Kind:   models.KindIncome,
		Amount: decimal.NewFromFloat(amount),
		Date:   date,
		Status: models.StatusPaid,
	})
	s.Require().NoError(err)
}

func (s *RestSuite) TestRevenueReport() {
	s.seedIncome(100, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	s.seedIncome(200, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC))

	var report service.TrendReport
	resp := s.sendRequest(http.MethodGet,
		"/api/v1/reports/revenue?startDate=2024-01-01&endDate=2024-03-31&groupBy=month", nil, "", &report)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(300.0, report.Total)
	s.Require().Equal([]finance.PeriodTotal{
		{Period: "2024-01", Total: 100, Count: 1},
		{Period: "2024-02", Total: 200, Count: 1},
	}, report.Series)
}

func (s *RestSuite) TestReportBadParams() {
	var errResp ErrorResponse
	resp := s.sendRequest(http.MethodGet, "/api/v1/reports/revenue?startDate=bogus&endDate=2024-03-31", nil, "", &errResp)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.sendRequest(http.MethodGet,
		"/api/v1/reports/revenue?startDate=2024-01-01&endDate=2024-03-31&groupBy=fortnight", nil, "", &errResp)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.sendRequest(http.MethodGet,
		"/api/v1/reports/revenue?startDate=2024-03-31&endDate=2024-01-01", nil, "", &errResp)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.sendRequest(http.MethodGet, "/api/v1/reports/forecast?months=abc", nil, "", &errResp)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RestSuite) TestTransactionLifecycle() {
	var created models.Transaction
	resp := s.sendRequest(http.MethodPost, "/api/v1/transactions/", map[string]interface{}{
		"kind":   "income",
		"amount": 1500.50,
		"date":   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}, "", &created)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Require().Equal(models.StatusPending, created.Status)

	var updated models.Transaction
	resp = s.sendRequest(http.MethodPatch, fmt.Sprintf("/api/v1/transactions/%d/status", created.ID),
		map[string]string{"status": "approved"}, "", &updated)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(models.StatusApproved, updated.Status)
}

func (s *RestSuite) TestPortalFlow() {
	ctx := context.Background()
	_, err := s.app.RegisterPortalAccount(ctx, 7, "client@example.com", "s3cret")
	s.Require().NoError(err)

	var errResp ErrorResponse
	resp := s.sendRequest(http.MethodPost, "/api/v1/portal/login",
		loginRequest{Email: "client@example.com", Password: "wrong"}, "", &errResp)
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	var token models.TokenResponse
	resp = s.sendRequest(http.MethodPost, "/api/v1/portal/login",
		loginRequest{Email: "client@example.com", Password: "s3cret"}, "", &token)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NotEmpty(token.Token)

	var claims models.Claims
	resp = s.sendRequest(http.MethodGet, "/api/v1/portal/me", nil, token.Token, &claims)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(7, claims.ClientID)

	resp = s.sendRequest(http.MethodGet, "/api/v1/portal/me", nil, "", &errResp)
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = s.sendRequest(http.MethodPost, "/api/v1/portal/logout", nil, token.Token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.sendRequest(http.MethodGet, "/api/v1/portal/me", nil, token.Token, &errResp)
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)
}
