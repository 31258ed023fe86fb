package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aussieverify/aussieverify/config"
	"github.com/aussieverify/aussieverify/internal/db"
	"github.com/aussieverify/aussieverify/internal/handlers"
	"github.com/aussieverify/aussieverify/internal/mq"
	"github.com/aussieverify/aussieverify/internal/services"
	"github.com/aussieverify/aussieverify/internal/storage"
	"github.com/aussieverify/aussieverify/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	degraded   bool
	stopPurge  chan struct{}
}

// New constructs a Server. When JWT_SECRET is absent or the database is
// unreachable the server still starts, but serves only the health endpoint
// and a configuration notice: a detected, reported condition rather than a
// crash loop.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", serverPort(cfg)),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		log.Println("JWT_SECRET is not set; running degraded")
		s.serveDegraded()
		return s, nil
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Printf("database unavailable; running degraded: %v", err)
		s.serveDegraded()
		return s, nil
	}
	s.db = dbConn

	userRepo := store.NewUserRepository(dbConn)
	profileRepo := store.NewProfileRepository(dbConn)
	verificationRepo := store.NewVerificationRepository(dbConn)
	resetTokenRepo := store.NewResetTokenRepository(dbConn)

	s.stopPurge = make(chan struct{})
	go purgeExpiredTokens(resetTokenRepo, s.stopPurge)

	var mailQueue *mq.MQ
	if backend, err := newMQBackend(ctx, cfg.MQ); err != nil {
		log.Printf("mail queue unavailable; reset mails disabled: %v", err)
	} else if backend != nil {
		mailQueue = mq.New(backend)
		s.queue = mailQueue
	}

	var artifacts services.ArtifactStore
	if objectStore, err := newObjectStore(ctx, cfg.Storage); err != nil {
		log.Printf("artifact storage unavailable; export archiving disabled: %v", err)
	} else if objectStore != nil {
		archive := storage.NewStorage(objectStore)
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Printf("artifact bucket unavailable; export archiving disabled: %v", err)
		} else {
			artifacts = archive
		}
	}

	identityService := services.NewIdentityService(
		userRepo,
		resetTokenRepo,
		mailPublisher(mailQueue),
		cfg.PortalBaseURL,
		cfg.Auth.RecoveryTokenTTL,
		cfg.Auth.RequireEmailConfirmation,
	)
	portalService := services.NewPortalService(profileRepo, verificationRepo, artifacts)

	authMiddleware := handlers.RequireAuth(cfg.Auth.JWTSecret)

	router.Group(func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(requireAPIKey(cfg.APIKey))
		}
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, identityService, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.RecoveryTokenTTL)
		})
		r.Route("/portal", func(r chi.Router) {
			r.Use(authMiddleware)
			handlers.PortalRouter(r, portalService, identityService)
		})
	})

	return s, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Degraded reports whether the server is running without its API surface.
func (s *Server) Degraded() bool {
	return s.degraded
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.stopPurge != nil {
		close(s.stopPurge)
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

// serveDegraded mounts a catch-all that reports the missing configuration.
// Only /healthz keeps answering normally.
func (s *Server) serveDegraded() {
	s.degraded = true
	s.router.NotFound(degradedHandler)
	s.router.MethodNotAllowed(degradedHandler)
}

func degradedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"error":"configuration missing: backend features are disabled"}`))
}

// purgeExpiredTokens drops stale recovery tokens hourly until stop closes.
func purgeExpiredTokens(tokens *store.ResetTokenRepository, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := tokens.DeleteExpired(ctx); err != nil {
			log.Printf("purge expired recovery tokens: %v", err)
		}
		cancel()

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// requireAPIKey gates every request behind the shared publishable key.
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != key {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func serverPort(cfg config.Config) int {
	if cfg.ServerPort == 0 {
		return 8080
	}
	return cfg.ServerPort
}

// newMQBackend selects the queue backend, or nil when none is configured.
func newMQBackend(ctx context.Context, cfg config.MQConfig) (mq.Backend, error) {
	switch cfg.Backend {
	case "rabbitmq":
		return mq.NewRabbitMQBackend(cfg.RabbitMQ)
	case "pubsub":
		return mq.NewPubSubBackend(ctx, cfg.PubSub)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// newObjectStore selects the artifact backend, or nil when none is
// configured.
func newObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "minio":
		return storage.NewMinioStore(cfg.Minio)
	case "gcs":
		return storage.NewGCSStore(ctx, cfg.GCS)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// mailPublisher converts a possibly-nil *mq.MQ into the service interface
// without wrapping nil in a non-nil interface value.
func mailPublisher(queue *mq.MQ) services.MailPublisher {
	if queue == nil {
		return nil
	}
	return queue
}
