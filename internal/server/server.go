package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivmel/modelbooth-bot/internal/models"
	"github.com/ivmel/modelbooth-bot/internal/service"
	"github.com/ivmel/modelbooth-bot/internal/telegram"
)

// Server exposes the webhook endpoint Telegram posts updates to, a
// liveness probe, and a small basic-auth admin listing.
type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	bot      *telegram.Bot
	access   *service.AccessService
	router   *chi.Mux

	baseCtx context.Context
}

func New(addr, username, password string, log *slog.Logger, bot *telegram.Bot, access *service.AccessService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		bot:      bot,
		access:   access,
		router:   r,
		baseCtx:  context.Background(),
	}

	r.Post("/telegram/webhook", s.handleWebhook)
	r.Get("/healthz", s.handleHealthz)
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/users", s.handleListUsers)
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
		// Webhook responses return immediately; update handling runs
		// detached, so a short write timeout is safe.
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("http server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleWebhook acknowledges Telegram immediately and processes the update
// detached from the request. Telegram retries on non-200, so even a
// malformed body gets a 200 to stop redelivery.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.log.Error("decode webhook update", "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	go s.bot.HandleUpdate(s.baseCtx, update)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusPending
	}
	switch status {
	case models.StatusPending, models.StatusApproved, models.StatusDenied:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	users := s.access.ListByStatus(status)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(users)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="modelbooth"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
