package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-echoes/internal/account"
	"github.com/npezzotti/go-echoes/internal/config"
	"github.com/npezzotti/go-echoes/internal/database"
	"github.com/npezzotti/go-echoes/internal/feed"
	"github.com/npezzotti/go-echoes/internal/friends"
	"github.com/npezzotti/go-echoes/internal/identity"
	"github.com/npezzotti/go-echoes/internal/journal"
	"github.com/npezzotti/go-echoes/internal/profile"
	"github.com/npezzotti/go-echoes/internal/ratelimit"
	"github.com/npezzotti/go-echoes/internal/server"
	"github.com/npezzotti/go-echoes/internal/stats"
	"go.uber.org/zap"
)

type Services struct {
	Accounts *account.Service
	Identity *identity.Manager
	Friends  *friends.Store
	Feed     *feed.Feed
	Journal  *journal.Journal
	Profile  *profile.Aggregator
}

type EchoesApp struct {
	log            *zap.SugaredLogger
	db             database.EchoesRepository
	mux            *http.Server
	hub            *server.Hub
	svc            Services
	stats          stats.StatsProvider
	allowedOrigins []string
	limiter        *ratelimit.Limiter
	now            func() time.Time
}

func NewEchoesApp(
	mux *http.ServeMux,
	logger *zap.SugaredLogger,
	hub *server.Hub,
	db database.EchoesRepository,
	su stats.StatsProvider,
	svc Services,
	cfg *config.Config,
) *EchoesApp {
	s := &EchoesApp{
		log:            logger,
		db:             db,
		hub:            hub,
		svc:            svc,
		stats:          su,
		allowedOrigins: cfg.AllowedOrigins,
		limiter:        ratelimit.New(cfg.AuthRPS, cfg.AuthBurst),
		now:            func() time.Time { return time.Now().UTC() },
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.Handle("POST /api/auth/signup", s.rateLimit(s.signup))
	mux.Handle("POST /api/auth/login", s.rateLimit(s.login))
	mux.Handle("POST /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/auth/reset-password", s.rateLimit(s.resetPassword))
	mux.Handle("POST /api/auth/reset-password/confirm", s.rateLimit(s.confirmPasswordReset))
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))

	mux.Handle("GET /api/profile", s.authMiddleware(s.getProfile))
	mux.Handle("POST /api/profile/rotate", s.authMiddleware(s.rotateId))
	mux.Handle("PUT /api/profile/settings", s.authMiddleware(s.updateSettings))
	mux.Handle("GET /api/profile/stats", s.authMiddleware(s.getStats))

	mux.Handle("GET /api/friends", s.authMiddleware(s.listFriends))
	mux.Handle("POST /api/friends", s.authMiddleware(s.addFriend))
	mux.Handle("DELETE /api/friends/{id}", s.authMiddleware(s.removeFriend))

	mux.Handle("GET /api/echoes", s.authMiddleware(s.getEchoes))
	mux.Handle("POST /api/echoes", s.authMiddleware(s.postEcho))

	mux.Handle("GET /api/vibes", s.authMiddleware(s.listVibes))
	mux.Handle("POST /api/vibes", s.authMiddleware(s.saveVibe))
	mux.Handle("DELETE /api/vibes/{id}", s.authMiddleware(s.deleteVibe))

	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mux = srv
	return s
}

// Limiter returns the per address limiter guarding credential endpoints.
func (s *EchoesApp) Limiter() *ratelimit.Limiter {
	return s.limiter
}

func (s *EchoesApp) Start() error {
	s.log.Infow("starting server", "addr", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *EchoesApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
