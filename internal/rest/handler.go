package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mediahaus/studiocrm/pkg/finance"
	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/mediahaus/studiocrm/pkg/pgstore"
	"github.com/mediahaus/studiocrm/pkg/scheduling"
	"github.com/mediahaus/studiocrm/pkg/service"
)

const dateLayout = `2006-01-02`

func idParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// parseRange resolves the report window from either a period keyword or
// explicit startDate/endDate query params. Explicit end dates are
// inclusive on input and converted to a half-open bound.
func parseRange(r *http.Request) (service.ReportRange, error) {
	if period := r.URL.Query().Get("period"); period != "" {
		return service.ResolvePeriod(period, time.Now())
	}
	start, err := time.Parse(dateLayout, r.URL.Query().Get("startDate"))
	if err != nil {
		return service.ReportRange{}, fmt.Errorf("invalid startDate: %w", err)
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("endDate"))
	if err != nil {
		return service.ReportRange{}, fmt.Errorf("invalid endDate: %w", err)
	}
	if end.Before(start) {
		return service.ReportRange{}, fmt.Errorf("endDate before startDate")
	}
	rng := service.ReportRange{From: start, To: end.AddDate(0, 0, 1), Granularity: finance.Custom}
	if groupBy := r.URL.Query().Get("groupBy"); groupBy != "" {
		g, err := finance.ParseGranularity(groupBy)
		if err != nil {
			return service.ReportRange{}, err
		}
		rng.Granularity = g
	}
	return rng, nil
}

func (s *Server) handleStoreErr(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, pgstore.ErrEventNotFound),
		errors.Is(err, pgstore.ErrTransactionNotFound),
		errors.Is(err, pgstore.ErrInvoiceNotFound),
		errors.Is(err, pgstore.ErrPortalAccountNotFound):
		s.writeResponse(w, http.StatusNotFound, err)
	case errors.Is(err, pgstore.ErrEventConflict):
		s.writeResponse(w, http.StatusConflict, err)
	case errors.Is(err, scheduling.ErrInvalidWindow):
		s.writeResponse(w, http.StatusBadRequest, err)
	default:
		s.log.Warnf("err during %s: %v", action, err)
		s.writeResponse(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) getEventsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := s.app.GetEvents(r.Context())
	if err != nil {
		s.handleStoreErr(w, err, "getting events")
		return
	}
	s.writeResponse(w, http.StatusOK, events)
}

func (s *Server) getEventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	event, err := s.app.GetEvent(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, err, "getting event")
		return
	}
	s.writeResponse(w, http.StatusOK, event)
}

func (s *Server) createEventHandler(w http.ResponseWriter, r *http.Request) {
	var req models.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	event, err := s.app.CreateEvent(r.Context(), req)
	var conflictErr *service.ConflictError
	switch {
	case errors.As(err, &conflictErr):
		s.writeResponse(w, http.StatusConflict, ConflictResponse{
			Error:     conflictErr.Error(),
			Conflicts: conflictErr.Conflicts,
		})
		return
	case err != nil:
		s.handleStoreErr(w, err, "creating event")
		return
	}
	s.writeResponse(w, http.StatusCreated, event)
}

func (s *Server) updateEventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	var req models.EventRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	event, err := s.app.UpdateEvent(r.Context(), id, req)
	var conflictErr *service.ConflictError
	switch {
	case errors.As(err, &conflictErr):
		s.writeResponse(w, http.StatusConflict, ConflictResponse{
			Error:     conflictErr.Error(),
			Conflicts: conflictErr.Conflicts,
		})
		return
	case err != nil:
		s.handleStoreErr(w, err, "updating event")
		return
	}
	s.writeResponse(w, http.StatusOK, event)
}

func (s *Server) deleteEventHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	event, err := s.app.DeleteEvent(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, err, "deleting event")
		return
	}
	s.writeResponse(w, http.StatusOK, event)
}

type conflictCheckRequest struct {
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Attendees      models.IDList `json:"attendees"`
	ExcludeEventID int           `json:"exclude_event_id"`
}

func (s *Server) checkConflictsHandler(w http.ResponseWriter, r *http.Request) {
	var req conflictCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	conflicts, err := s.app.CheckConflicts(r.Context(), service.ConflictQuery{
		Start:          req.StartTime,
		End:            req.EndTime,
		Attendees:      req.Attendees,
		ExcludeEventID: req.ExcludeEventID,
	})
	if err != nil {
		s.handleStoreErr(w, err, "checking conflicts")
		return
	}
	s.writeResponse(w, http.StatusOK, conflicts)
}

func (s *Server) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	filter := pgstore.TransactionFilter{From: rng.From, To: rng.To}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filter.Kind = models.TransactionKind(kind)
	}
	if category := r.URL.Query().Get("category"); category != "" {
		filter.Category = category
	}
	rows, err := s.app.ListTransactions(r.Context(), filter)
	if err != nil {
		s.handleStoreErr(w, err, "listing transactions")
		return
	}
	s.writeResponse(w, http.StatusOK, rows)
}

func (s *Server) createTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.app.CreateTransaction(r.Context(), req)
	if err != nil {
		s.handleStoreErr(w, err, "creating transaction")
		return
	}
	s.writeResponse(w, http.StatusCreated, t)
}

func (s *Server) getTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.app.GetTransaction(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, err, "getting transaction")
		return
	}
	s.writeResponse(w, http.StatusOK, t)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateTransactionStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	var req statusRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.app.UpdateTransactionStatus(r.Context(), id, models.TransactionStatus(req.Status))
	if err != nil {
		s.handleStoreErr(w, err, "updating transaction status")
		return
	}
	s.writeResponse(w, http.StatusOK, t)
}

func (s *Server) deleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	t, err := s.app.DeleteTransaction(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, err, "deleting transaction")
		return
	}
	s.writeResponse(w, http.StatusOK, t)
}

func (s *Server) createInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	var req models.InvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	inv, err := s.app.CreateInvoice(r.Context(), req)
	if err != nil {
		s.handleStoreErr(w, err, "creating invoice")
		return
	}
	s.writeResponse(w, http.StatusCreated, inv)
}

func (s *Server) getInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	inv, err := s.app.GetInvoice(r.Context(), id)
	if err != nil {
		s.handleStoreErr(w, err, "getting invoice")
		return
	}
	s.writeResponse(w, http.StatusOK, inv)
}

func (s *Server) updateInvoiceStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	var req statusRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	inv, err := s.app.UpdateInvoiceStatus(r.Context(), id, models.InvoiceStatus(req.Status))
	if err != nil {
		s.handleStoreErr(w, err, "updating invoice status")
		return
	}
	s.writeResponse(w, http.StatusOK, inv)
}

func (s *Server) getProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := s.app.GetProjects(r.Context())
	if err != nil {
		s.handleStoreErr(w, err, "getting projects")
		return
	}
	s.writeResponse(w, http.StatusOK, projects)
}

func (s *Server) createProjectHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.app.CreateProject(r.Context(), p)
	if err != nil {
		s.handleStoreErr(w, err, "creating project")
		return
	}
	s.writeResponse(w, http.StatusCreated, created)
}

func (s *Server) getClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.app.GetClients(r.Context())
	if err != nil {
		s.handleStoreErr(w, err, "getting clients")
		return
	}
	s.writeResponse(w, http.StatusOK, clients)
}

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var c models.Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.app.CreateClient(r.Context(), c)
	if err != nil {
		s.handleStoreErr(w, err, "creating client")
		return
	}
	s.writeResponse(w, http.StatusCreated, created)
}

func (s *Server) getUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.app.GetUsers(r.Context())
	if err != nil {
		s.handleStoreErr(w, err, "getting users")
		return
	}
	s.writeResponse(w, http.StatusOK, users)
}

func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.app.CreateUser(r.Context(), user)
	if err != nil {
		s.handleStoreErr(w, err, "creating user")
		return
	}
	s.writeResponse(w, http.StatusCreated, created)
}

func (s *Server) revenueTrendHandler(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.app.RevenueTrend(r.Context(), rng)
	if err != nil {
		s.handleStoreErr(w, err, "building revenue trend")
		return
	}
	s.writeResponse(w, http.StatusOK, report)
}

func (s *Server) expenseTrendHandler(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.app.ExpenseTrend(r.Context(), rng)
	if err != nil {
		s.handleStoreErr(w, err, "building expense trend")
		return
	}
	s.writeResponse(w, http.StatusOK, report)
}

func (s *Server) categoryBreakdownHandler(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	kind := models.KindExpense
	if k := r.URL.Query().Get("kind"); k != "" {
		kind = models.TransactionKind(k)
	}
	groups, err := s.app.CategoryBreakdown(r.Context(), rng, kind)
	if err != nil {
		s.handleStoreErr(w, err, "building category breakdown")
		return
	}
	s.writeResponse(w, http.StatusOK, groups)
}

func (s *Server) projectRollupsHandler(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	rollups, err := s.app.ProjectRollups(r.Context(), rng)
	if err != nil {
		s.handleStoreErr(w, err, "building project rollups")
		return
	}
	s.writeResponse(w, http.StatusOK, rollups)
}

func (s *Server) clientRollupsHandler(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	rollups, err := s.app.ClientRollups(r.Context(), rng)
	if err != nil {
		s.handleStoreErr(w, err, "building client rollups")
		return
	}
	s.writeResponse(w, http.StatusOK, rollups)
}

func (s *Server) profitabilityHandler(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	summary, err := s.app.ProfitabilitySummary(r.Context(), rng)
	if err != nil {
		s.handleStoreErr(w, err, "building profitability summary")
		return
	}
	s.writeResponse(w, http.StatusOK, summary)
}

func (s *Server) forecastHandler(w http.ResponseWriter, r *http.Request) {
	months := 3
	if m := r.URL.Query().Get("months"); m != "" {
		parsed, err := strconv.Atoi(m)
		if err != nil || parsed < 1 {
			s.writeResponse(w, http.StatusBadRequest, fmt.Errorf("invalid months: %q", m))
			return
		}
		months = parsed
	}
	result, err := s.app.RevenueForecast(r.Context(), months, time.Now())
	if err != nil {
		s.handleStoreErr(w, err, "building forecast")
		return
	}
	s.writeResponse(w, http.StatusOK, result)
}

func (s *Server) agingHandler(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.app.ReceivablesAging(r.Context(), time.Now())
	if err != nil {
		s.handleStoreErr(w, err, "building receivables aging")
		return
	}
	s.writeResponse(w, http.StatusOK, buckets)
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	summary, err := s.app.Dashboard(r.Context(), rng, time.Now())
	if err != nil {
		s.handleStoreErr(w, err, "building dashboard")
		return
	}
	s.writeResponse(w, http.StatusOK, summary)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) portalLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	token, err := s.app.PortalLogin(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		s.writeResponse(w, http.StatusUnauthorized, err)
		return
	case err != nil:
		s.handleStoreErr(w, err, "portal login")
		return
	}
	s.writeResponse(w, http.StatusOK, token)
}

func (s *Server) portalLogoutHandler(w http.ResponseWriter, r *http.Request) {
	claims := s.getClaims(r.Context())
	if claims == nil {
		s.writeResponse(w, http.StatusUnauthorized, ErrUnauthorised)
		return
	}
	if err := s.app.PortalLogout(r.Context(), claims); err != nil {
		s.handleStoreErr(w, err, "portal logout")
		return
	}
	s.writeResponse(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) portalMeHandler(w http.ResponseWriter, r *http.Request) {
	claims := s.getClaims(r.Context())
	if claims == nil {
		s.writeResponse(w, http.StatusUnauthorized, ErrUnauthorised)
		return
	}
	s.writeResponse(w, http.StatusOK, claims)
}
