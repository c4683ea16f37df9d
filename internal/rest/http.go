package rest

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mediahaus/studiocrm/pkg/finance"
	"github.com/mediahaus/studiocrm/pkg/models"
	"github.com/mediahaus/studiocrm/pkg/pgstore"
	"github.com/mediahaus/studiocrm/pkg/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type App interface {
	GetEvents(ctx context.Context) ([]models.Event, error)
	GetEvent(ctx context.Context, id int) (models.Event, error)
	CreateEvent(ctx context.Context, req models.EventRequest) (models.Event, error)
	UpdateEvent(ctx context.Context, id int, req models.EventRequest) (models.Event, error)
	DeleteEvent(ctx context.Context, id int) (models.Event, error)
	CheckConflicts(ctx context.Context, q service.ConflictQuery) ([]models.Event, error)

	ListTransactions(ctx context.Context, filter pgstore.TransactionFilter) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, req models.TransactionRequest) (models.Transaction, error)
	GetTransaction(ctx context.Context, id int) (models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int, status models.TransactionStatus) (models.Transaction, error)
	DeleteTransaction(ctx context.Context, id int) (models.Transaction, error)

	CreateInvoice(ctx context.Context, req models.InvoiceRequest) (models.Invoice, error)
	GetInvoice(ctx context.Context, id int) (models.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int, status models.InvoiceStatus) (models.Invoice, error)

	GetProjects(ctx context.Context) ([]models.Project, error)
	CreateProject(ctx context.Context, p models.Project) (models.Project, error)
	GetClients(ctx context.Context) ([]models.Client, error)
	CreateClient(ctx context.Context, c models.Client) (models.Client, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	RevenueTrend(ctx context.Context, rng service.ReportRange) (service.TrendReport, error)
	ExpenseTrend(ctx context.Context, rng service.ReportRange) (service.TrendReport, error)
	CategoryBreakdown(ctx context.Context, rng service.ReportRange, kind models.TransactionKind) ([]finance.GroupTotal, error)
	ProjectRollups(ctx context.Context, rng service.ReportRange) ([]finance.ProjectRollup, error)
	ClientRollups(ctx context.Context, rng service.ReportRange) ([]finance.ClientRollup, error)
	ProfitabilitySummary(ctx context.Context, rng service.ReportRange) (finance.Profitability, error)
	RevenueForecast(ctx context.Context, months int, now time.Time) (finance.ForecastResult, error)
	ReceivablesAging(ctx context.Context, now time.Time) ([]finance.AgingBucket, error)
	Dashboard(ctx context.Context, rng service.ReportRange, now time.Time) (service.DashboardSummary, error)

	PortalLogin(ctx context.Context, email, password string) (models.TokenResponse, error)
	PortalLogout(ctx context.Context, claims *models.Claims) error
	TokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Server struct {
	log       *logrus.Entry
	app       App
	address   string
	version   string
	publicKey *rsa.PublicKey
	server    *http.Server
}

func NewServer(log *logrus.Logger, app App, address, version string, publicKey *rsa.PublicKey) *Server {
	s := Server{
		log:       log.WithField("component", "rest"),
		app:       app,
		address:   address,
		version:   version,
		publicKey: publicKey,
	}
	return &s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/version", s.versionHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/events", func(r chi.Router) {
				r.Get("/", s.getEventsHandler)
				r.Post("/", s.createEventHandler)
				r.Post("/conflicts", s.checkConflictsHandler)
				r.Get("/{id}", s.getEventHandler)
				r.Patch("/{id}", s.updateEventHandler)
				r.Delete("/{id}", s.deleteEventHandler)
			})
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", s.listTransactionsHandler)
				r.Post("/", s.createTransactionHandler)
				r.Get("/{id}", s.getTransactionHandler)
				r.Patch("/{id}/status", s.updateTransactionStatusHandler)
				r.Delete("/{id}", s.deleteTransactionHandler)
			})
			r.Route("/invoices", func(r chi.Router) {
				r.Post("/", s.createInvoiceHandler)
				r.Get("/{id}", s.getInvoiceHandler)
				r.Patch("/{id}/status", s.updateInvoiceStatusHandler)
			})
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.getProjectsHandler)
				r.Post("/", s.createProjectHandler)
			})
			r.Route("/clients", func(r chi.Router) {
				r.Get("/", s.getClientsHandler)
				r.Post("/", s.createClientHandler)
			})
			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.getUsersHandler)
				r.Post("/", s.createUserHandler)
			})
			r.Route("/reports", func(r chi.Router) {
				r.Get("/revenue", s.revenueTrendHandler)
				r.Get("/expenses", s.expenseTrendHandler)
				r.Get("/categories", s.categoryBreakdownHandler)
				r.Get("/projects", s.projectRollupsHandler)
				r.Get("/clients", s.clientRollupsHandler)
				r.Get("/profitability", s.profitabilityHandler)
				r.Get("/forecast", s.forecastHandler)
				r.Get("/aging", s.agingHandler)
				r.Get("/dashboard", s.dashboardHandler)
			})
			r.Route("/portal", func(r chi.Router) {
				r.Post("/login", s.portalLoginHandler)
				r.Group(func(r chi.Router) {
					r.Use(s.jwtAuth)
					r.Post("/logout", s.portalLogoutHandler)
					r.Get("/me", s.portalMeHandler)
				})
			})
		})
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{Addr: s.address, Handler: s.routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("err during shutdown: %v", err)
		}
	}()
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	_, err := fmt.Fprintf(w, "%s\n", s.version)
	if err != nil {
		s.log.Warnf("err during writing to connection: %v", err)
	}
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if x, ok := data.(error); ok {
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: x.Error()}); err != nil {
			s.log.Warnf("err during encoding error: %v", err)
		}
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warnf("err during encoding response: %v", err)
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ConflictResponse struct {
	Error     string         `json:"error"`
	Conflicts []models.Event `json:"conflicts"`
}
