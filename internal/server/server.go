// Package server is the composition root: it opens the database, builds
// the services and handlers, mounts the routes and runs the HTTP server.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → sqlite.DB, media.Store, auth.TokenService
//	             → service.* (receive repository interfaces)
//	             → handler.* (receive services)
//	             → chi routes
//
// Each layer only receives what it needs: services never see HTTP and
// handlers never touch the database.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/foodgram/internal/auth"
	"github.com/sakif/foodgram/internal/config"
	"github.com/sakif/foodgram/internal/handler"
	"github.com/sakif/foodgram/internal/media"
	"github.com/sakif/foodgram/internal/metrics"
	"github.com/sakif/foodgram/internal/middleware"
	"github.com/sakif/foodgram/internal/model"
	sqliteRepo "github.com/sakif/foodgram/internal/repository/sqlite"
	"github.com/sakif/foodgram/internal/service"
)

// newPasswordService is swapped in tests for a cheaper bcrypt cost.
var newPasswordService = auth.NewPasswordService

// Server owns the router and the database connection, which Start closes
// on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	media  *media.Store
}

// New wires every dependency from cfg. The caller must Close the server if
// it never calls Start.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if dir := filepath.Dir(cfg.Database.Path); cfg.Database.Path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := media.NewStore(media.Config{
		Dir:         cfg.Media.Dir,
		BaseURL:     cfg.Media.URLPrefix,
		MaxBytes:    cfg.Media.MaxImageBytes,
		ThumbWidth:  uint(cfg.Media.ThumbWidth),
		ThumbHeight: uint(cfg.Media.ThumbHeight),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening media store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		media:  store,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz, /metrics, /media/*, /s/{id}
//	GET    /auth/github/login, /auth/github/callback  (when configured)
//	POST   /api/auth/token/login, /api/auth/token/logout
//	       /api/users[...], /api/ingredients[...], /api/recipes[...]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID → RealIP → Logger → Recoverer → CORS → rate limit. The logger
// sits outside Recoverer so recovered panics are logged as 500s.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := newPasswordService()

	chiMW := middleware.NewChi(middleware.Config{
		CORSOrigins:       s.config.Security.CORSOrigins,
		RateLimitDisabled: s.config.Security.RateLimitDisabled,
		RateLimitRequests: s.config.Security.RateLimitRequests,
		RateLimitWindow:   s.config.Security.RateLimitWindow,
		LoginRateLimit:    s.config.Security.LoginRateLimit,
	})

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chiMW.CORS())
	s.router.Use(chiMW.RateLimit())

	// === Services ===
	userService := service.NewUserService(s.db, s.db, passwords, s.media, s.logger)
	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	ingredientService := service.NewIngredientService(s.db, s.logger)
	recipeService := service.NewRecipeService(s.db, s.db, userService, s.media, s.logger)
	relationService := service.NewRelationService(s.db, s.db, s.media, s.logger)
	subscriptionService := service.NewSubscriptionService(s.db, s.db, s.db, s.media, s.logger)
	shoppingService := service.NewShoppingListService(s.db, s.logger)

	// === Handlers ===
	var github *auth.GitHubProvider
	if s.config.Auth.GitHubEnabled() {
		github = auth.NewGitHubProvider(
			s.config.Auth.GitHubClientID,
			s.config.Auth.GitHubClientSecret,
			s.githubCallbackURL(),
		)
	}
	authHandler := handler.NewAuthHandler(authService, github, s.config.Auth.CookieSecure, s.logger)
	userHandler := handler.NewUserHandler(userService, subscriptionService, s.logger)
	ingredientHandler := handler.NewIngredientHandler(ingredientService, s.logger)
	recipeHandler := handler.NewRecipeHandler(recipeService, relationService, shoppingService, s.config.Server.BaseURL, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	// === Operational ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())
	if prefix := s.config.Media.URLPrefix; strings.HasPrefix(prefix, "/") {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
		s.router.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.media.Dir()))))
	}
	s.router.Get("/s/{id}", recipeHandler.HandleShortLink)

	// === GitHub OAuth ===
	if github != nil {
		s.router.Route("/auth/github", func(r chi.Router) {
			r.Use(chiMW.LoginRateLimit())
			r.Get("/login", authHandler.HandleGitHubLogin)
			r.Get("/callback", authHandler.HandleGitHubCallback)
		})
		s.logger.Info("GitHub sign-in enabled")
	}

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth/token", func(r chi.Router) {
			r.With(chiMW.LoginRateLimit()).Post("/login", authHandler.HandleTokenLogin)
			r.With(requireAuth).Post("/logout", authHandler.HandleTokenLogout)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(chiMW.LoginRateLimit()).Post("/", userHandler.HandleRegister)
			r.With(optionalAuth).Get("/", userHandler.HandleList)
			r.With(optionalAuth).Get("/{id}", userHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", userHandler.HandleMe)
				r.Put("/me/avatar", userHandler.HandleSetAvatar)
				r.Delete("/me/avatar", userHandler.HandleDeleteAvatar)
				r.Post("/set_password", userHandler.HandleSetPassword)
				r.Get("/subscriptions", userHandler.HandleSubscriptions)
				r.Post("/{id}/subscribe", userHandler.HandleSubscribe)
				r.Delete("/{id}/subscribe", userHandler.HandleUnsubscribe)
			})
		})

		r.Route("/ingredients", func(r chi.Router) {
			r.Get("/", ingredientHandler.HandleSearch)
			r.Get("/{id}", ingredientHandler.HandleGet)
		})

		r.Route("/recipes", func(r chi.Router) {
			r.With(optionalAuth).Get("/", recipeHandler.HandleList)
			r.With(optionalAuth).Get("/{id}", recipeHandler.HandleGet)
			r.Get("/{id}/get-link", recipeHandler.HandleGetLink)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", recipeHandler.HandleCreate)
				r.Patch("/{id}", recipeHandler.HandleUpdate)
				r.Delete("/{id}", recipeHandler.HandleDelete)
				r.Get("/download_shopping_cart", recipeHandler.HandleDownloadShoppingCart)

				r.Post("/{id}/favorite", recipeHandler.HandleAddRelation(model.RelationFavorite))
				r.Delete("/{id}/favorite", recipeHandler.HandleRemoveRelation(model.RelationFavorite))
				r.Post("/{id}/shopping_cart", recipeHandler.HandleAddRelation(model.RelationCart))
				r.Delete("/{id}/shopping_cart", recipeHandler.HandleRemoveRelation(model.RelationCart))
			})
		})
	})

	return nil
}

func (s *Server) githubCallbackURL() string {
	if s.config.Auth.GitHubCallbackURL != "" {
		return s.config.Auth.GitHubCallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/auth/github/callback", s.config.Server.Port)
}

// handleHealth reports whether the database answers.
//
// HTTP: GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting new connections
//  2. wait for in-flight requests (ShutdownTimeout)
//  3. close the database (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("database", s.config.Database.Path),
			slog.String("media", s.media.Dir()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
