// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/okian/courtside/internal/adapters/repository"
	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/presentation"
	"github.com/okian/courtside/internal/domain/roster"
	"github.com/okian/courtside/internal/reconcile"
	"github.com/okian/courtside/pkg/logger"
)

const maxBodyBytes = 1 << 16

// RosterStore is the persisted roster surface served under /api/me and
// /api/roster.
type RosterStore interface {
	FetchMe(ctx context.Context) (repository.User, error)
	FetchRoster(ctx context.Context) (roster.View, error)
	SwapSlots(ctx context.Context, from, to roster.SlotRef) error
}

// Session is the live match session. *service.Session satisfies it.
type Session interface {
	StatsProvider

	MatchView() service.MatchView
	SubscribeView(fn func(service.Update)) (unsubscribe func())
	StartMatch(ctx context.Context) error
	EndMatch()

	Roster() roster.View
	Selected() (roster.SlotRef, bool)
	Click(ref roster.SlotRef) (bool, error)
	Drop(from, to roster.SlotRef) error
	Refresh(ctx context.Context) error

	Chat() *presentation.Chat
	Salary() presentation.Salary
	Fixtures() presentation.Calendar
	Opponent() []roster.Slot
	User() repository.User
}

// Server wires HTTP routes for the roster store and the match session.
type Server struct {
	store   RosterStore
	session Session
	logger  logger.Logger

	corsOrigins []string
	liveBuffer  int
	writeWait   time.Duration

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	live          *liveHub
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithLiveBuffer sets how many updates a live view client may lag behind
// before it is dropped.
func WithLiveBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.liveBuffer = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(store RosterStore, session Session, opts ...Option) *Server {
	s := &Server{
		store:       store,
		session:     session,
		logger:      logger.Get().Named("api"),
		corsOrigins: []string{"*"},
		liveBuffer:  64,
		writeWait:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(session)
	s.live = newLiveHub(session, s.liveBuffer, s.writeWait, s.logger.Named("live"))
	return s
}

// Router returns the root handler with middleware applied.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/me", MetricsMiddleware(s.handleMe, "me"))
		r.Get("/roster", MetricsMiddleware(s.handleRoster, "roster"))
		r.Post("/roster/swap", MetricsMiddleware(s.handleSwap, "roster_swap"))

		r.Get("/lineup", MetricsMiddleware(s.handleLineup, "lineup"))
		r.Post("/lineup/click", MetricsMiddleware(s.handleClick, "lineup_click"))
		r.Post("/lineup/drop", MetricsMiddleware(s.handleDrop, "lineup_drop"))

		r.Get("/match", MetricsMiddleware(s.handleMatch, "match"))
		r.Post("/match/start", MetricsMiddleware(s.handleMatchStart, "match_start"))
		r.Post("/match/stop", MetricsMiddleware(s.handleMatchStop, "match_stop"))
		r.Get("/match/ws", MetricsMiddleware(s.live.handle, "match_ws"))

		r.Get("/chat", MetricsMiddleware(s.handleChatList, "chat"))
		r.Post("/chat", MetricsMiddleware(s.handleChatPost, "chat"))

		r.Get("/fixtures", MetricsMiddleware(s.handleFixtures, "fixtures"))
		r.Get("/salary", MetricsMiddleware(s.handleSalary, "salary"))
		r.Get("/opponent", MetricsMiddleware(s.handleOpponent, "opponent"))
	})
}

// Close drops every live view client.
func (s *Server) Close() {
	s.live.close()
}

// errorResponse carries both the structured code and message and the
// single "error" string older clients read.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes display as the "error" field and err's text as the
// message.
func writeError(w http.ResponseWriter, status int, code, display string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	if display == "" {
		display = msg
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Error: display})
}

// statusFor maps sentinel kinds to a status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, roster.ErrInvalidSlot), errors.Is(err, roster.ErrInvalidLocation),
		errors.Is(err, ErrBadRequest), errors.Is(err, presentation.ErrEmptyMessage):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, reconcile.ErrBusy):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, reconcile.ErrNotLoaded), errors.Is(err, reconcile.ErrStopped),
		errors.Is(err, service.ErrNotStarted), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, display string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", chimiddleware.GetReqID(r.Context())),
			logger.Error(err),
		)
	}
	writeError(w, status, code, display, err)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
