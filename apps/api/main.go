package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	authclient "github.com/bookline-app/bookline-core/domains/auth/be/client"
	authservice "github.com/bookline-app/bookline-core/domains/auth/be/service"
	identityrepo "github.com/bookline-app/bookline-core/domains/identity/be/repo"
	identityservice "github.com/bookline-app/bookline-core/domains/identity/be/service"
	subscriptionsrepo "github.com/bookline-app/bookline-core/domains/subscriptions/be/repo"
	subscriptionsservice "github.com/bookline-app/bookline-core/domains/subscriptions/be/service"
	tenantsrepo "github.com/bookline-app/bookline-core/domains/tenants/be/repo"
	tenantsservice "github.com/bookline-app/bookline-core/domains/tenants/be/service"
	platformlogging "github.com/bookline-app/bookline-core/platform/go/logging"
	platformmiddleware "github.com/bookline-app/bookline-core/platform/go/middleware"
	"github.com/bookline-app/bookline-core/platform/go/persistence"
	"github.com/bookline-app/bookline-core/platform/go/requesttrace"
	"github.com/bookline-app/bookline-core/platform/go/tenant"
	tenantmw "github.com/bookline-app/bookline-core/platform/go/tenant/middleware"
)

type config struct {
	Port               string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL        string        `env:"DATABASE_URL,required"`
	AuthBaseURL        string        `env:"AUTH_BASE_URL,required"`
	AuthAPIKey         string        `env:"AUTH_API_KEY"`
	PrimaryAuthTimeout time.Duration `env:"PRIMARY_AUTH_TIMEOUT" envDefault:"4s"`
	ResolveTimeout     time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"5s"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "session-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	subscriptionsRepo := subscriptionsrepo.NewPostgresRepository(pool)
	notifier := subscriptionsservice.NotifierFunc(func(businessID uuid.UUID) {
		logger.Warn("system self-repaired: trial activated",
			zap.String("business_id", businessID.String()))
	})
	resolver := subscriptionsservice.NewResolver(subscriptionsRepo, notifier, logger)

	directory := identityrepo.NewPostgresDirectory(pool)
	classifier := identityservice.NewClassifier(directory, resolver, logger)

	sessions := newSessionRegistry(func() *identityservice.Manager {
		return identityservice.NewManager(identityservice.ManagerConfig{
			Classifier:    classifier,
			Logger:        logger,
			SafetyTimeout: cfg.ResolveTimeout,
		})
	})

	tenantsRepo := tenantsrepo.NewPostgresRepository(pool)
	seeder := tenantsrepo.NewPostgresSeeder(pool)
	tenantsService := tenantsservice.New(tenantsRepo, seeder, logger)

	authHTTP, err := authclient.New(authclient.Config{
		BaseURL: cfg.AuthBaseURL,
		APIKey:  cfg.AuthAPIKey,
	}, logger)
	if err != nil {
		logger.Fatal("init auth client", zap.Error(err))
	}

	exchange := authservice.NewExchange(authservice.ExchangeConfig{
		Provider:       authHTTP,
		Fallback:       authHTTP,
		Tenants:        tenantProvisioner{svc: tenantsService},
		Logger:         logger,
		PrimaryTimeout: cfg.PrimaryAuthTimeout,
		OnAuthenticated: func(sess authservice.Session) {
			mgr := sessions.For(sess.Account.ID)
			mgr.Resolve(context.Background(), identityservice.AuthenticatedUser{
				ID:    sess.Account.ID,
				Email: sess.Account.Email,
			})
		},
	})

	handlers := &apiHandlers{
		exchange: exchange,
		provider: authHTTP,
		sessions: sessions,
		logger:   logger,
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))
	rootRouter.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			audit := requesttrace.Anonymous(chimw.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(requesttrace.IntoContext(r.Context(), audit)))
		})
	})

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	rootRouter.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", handlers.login)
		r.Post("/auth/register", handlers.register)
		r.Post("/auth/logout", handlers.logout)
		r.Get("/session", handlers.session)
		r.Post("/session/refresh", handlers.refreshSession)

		r.Route("/b/{slug}", func(r chi.Router) {
			r.Use(tenantmw.WithTenantSpace(tenantSpaceResolver{svc: tenantsService}, tenantmw.Config{
				CacheTTL: time.Minute,
			}))
			r.Get("/", handlers.business)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting session api", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// tenantProvisioner adapts the tenants service to the credential exchange.
type tenantProvisioner struct {
	svc *tenantsservice.Service
}

func (p tenantProvisioner) Provision(ctx context.Context, owner authservice.Account, input authservice.TenantInput) (authservice.Tenant, error) {
	created, err := p.svc.Register(ctx, tenantsservice.RegisterInput{
		OwnerUserID:  owner.ID,
		OwnerEmail:   owner.Email,
		OwnerName:    input.OwnerName,
		BusinessName: input.BusinessName,
		Phone:        input.Phone,
		Slug:         input.Slug,
	})
	if err != nil {
		return authservice.Tenant{}, err
	}
	return authservice.Tenant{BusinessID: created.ID, Slug: created.Slug}, nil
}

// tenantSpaceResolver adapts the tenants service to the tenant-space middleware.
type tenantSpaceResolver struct {
	svc *tenantsservice.Service
}

func (r tenantSpaceResolver) ResolveSpace(ctx context.Context, slug string) (tenant.Space, error) {
	b, err := r.svc.FindBySlug(ctx, slug)
	if err != nil {
		return tenant.Space{}, err
	}
	return tenant.Space{BusinessID: b.ID, Slug: b.Slug, Name: b.Name}, nil
}
