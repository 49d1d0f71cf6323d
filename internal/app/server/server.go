package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"hrmaccess/internal/domain/access"
	"hrmaccess/internal/domain/assignments"
	"hrmaccess/internal/domain/audit"
	"hrmaccess/internal/domain/auth"
	"hrmaccess/internal/domain/core"
	"hrmaccess/internal/domain/roles"
	"hrmaccess/internal/platform/cache"
	"hrmaccess/internal/platform/config"
	"hrmaccess/internal/platform/db"
	"hrmaccess/internal/platform/jobs"
	"hrmaccess/internal/platform/memstore"
	"hrmaccess/internal/platform/metrics"
	"hrmaccess/internal/platform/telemetry"
	accesshandler "hrmaccess/internal/transport/http/handlers/access"
	audithandler "hrmaccess/internal/transport/http/handlers/audit"
	authhandler "hrmaccess/internal/transport/http/handlers/auth"
	jobshandler "hrmaccess/internal/transport/http/handlers/jobs"
	roleshandler "hrmaccess/internal/transport/http/handlers/roles"
	"hrmaccess/internal/transport/http/middleware"
)

const serviceName = "hrm-access"

type App struct {
	Config   config.Config
	Router   http.Handler
	Metrics  *metrics.Collector
	Jobs     *jobs.Service
	Sessions *access.Sessions
	// Memory is set when running on the in-memory store.
	Memory *memstore.Store
	// TenantID is the seeded tenant, empty when seeding is disabled.
	TenantID string

	pool          *pgxpool.Pool
	redis         *redis.Client
	stopTelemetry telemetry.ShutdownFunc
	cancel        context.CancelFunc
}

type backends struct {
	directory   core.StoreAPI
	tenants     core.TenantLister
	roles       roles.StoreAPI
	assignments assignments.StoreAPI
	audit       audit.StoreAPI
	users       userBackend
	runs        jobs.RunStore
	ready       func(ctx context.Context) error
}

type userBackend interface {
	auth.UserStore
	auth.UserDirectory
}

type permissionCache interface {
	access.PermissionCache
	roles.CacheInvalidator
}

// New wires the stores, services and router. Background jobs start
// immediately and stop on Close.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New(), stopTelemetry: telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelInsecure)}

	be, err := app.openBackends(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	var permCache permissionCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		app.redis = client
		permCache = cache.NewPermissionCache(client, cfg.PermissionCacheTTL)
	}

	roleService := roles.NewService(be.roles, permCache)
	assignmentService := assignments.NewService(be.assignments, roleService, be.directory)
	auditService := audit.NewService(be.audit)
	authorizer := access.NewAuthorizer(be.assignments, be.roles, be.directory, permCache)

	if app.Memory != nil && cfg.RunSeed {
		tenantID, err := seedMemory(ctx, app.Memory, roleService, cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.TenantID = tenantID
	}

	deps := access.Deps{
		Directory:   be.directory,
		Roles:       roleService,
		Assignments: assignmentService,
		Audit:       auditService,
		Metrics:     app.Metrics,
		RecentLimit: cfg.AuditRecentLimit,
	}
	app.Sessions = access.NewSessions(deps)

	app.Jobs = jobs.New(be.runs, be.tenants, func(ctx context.Context, tenantID string) (any, error) {
		return access.Reconcile(ctx, deps, tenantID)
	}, cfg.BackfillSchedule, app.Metrics)
	jobsCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	if err := app.Jobs.Start(jobsCtx); err != nil {
		app.Close()
		return nil, fmt.Errorf("start jobs: %w", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	var observer middleware.RequestObserver
	if cfg.MetricsEnabled {
		observer = app.Metrics
	}
	router.Use(middleware.Logger(slog.Default(), observer))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	var rateOpts []middleware.RateLimitOption
	if app.redis != nil {
		rateOpts = append(rateOpts, middleware.WithCounter(middleware.NewRedisRateCounter(app.redis)))
	}
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute, rateOpts...))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute, rateOpts...))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := be.ready(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		if app.redis != nil {
			if err := app.redis.Ping(ctx).Err(); err != nil {
				http.Error(w, "cache not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if cfg.MetricsEnabled {
		router.Handle("/metrics", app.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		authhandler.NewHandler(be.users, cfg.JWTSecret, cfg.TokenTTL).RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			roleshandler.NewHandler(roleService, app.Sessions, authorizer).RegisterRoutes(r)
			accesshandler.NewHandler(accesshandler.Deps{
				Directory:   be.directory,
				Roles:       roleService,
				Assignments: assignmentService,
				Authorizer:  authorizer,
				Sessions:    app.Sessions,
				Perms:       authorizer,
			}).RegisterRoutes(r)
			audithandler.NewHandler(auditService, be.directory, be.users, roleService, authorizer).RegisterRoutes(r)
			jobshandler.NewHandler(app.Jobs, authorizer).RegisterRoutes(r)
		})
	})

	app.Router = otelhttp.NewHandler(router, serviceName)
	return app, nil
}

func (a *App) openBackends(ctx context.Context) (backends, error) {
	cfg := a.Config
	if cfg.StoreDriver == config.StoreDriverMemory {
		store := memstore.New()
		a.Memory = store
		slog.Warn("using in-memory store; data is lost on restart")
		return backends{
			directory:   store,
			tenants:     store,
			roles:       store,
			assignments: store,
			audit:       store,
			users:       store,
			runs:        store,
			ready:       func(context.Context) error { return nil },
		}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return backends{}, fmt.Errorf("db connect: %w", err)
	}
	a.pool = pool
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			return backends{}, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		tenantID, err := db.Seed(ctx, pool, db.SeedConfig{
			TenantName:    cfg.SeedTenantName,
			AdminEmail:    cfg.SeedAdminEmail,
			AdminPassword: cfg.SeedAdminPassword,
		})
		if err != nil {
			return backends{}, fmt.Errorf("seed: %w", err)
		}
		a.TenantID = tenantID
	}

	directory := core.NewStore(pool)
	return backends{
		directory:   directory,
		tenants:     directory,
		roles:       roles.NewStore(pool),
		assignments: assignments.NewStore(pool),
		audit:       audit.NewStore(pool),
		users:       auth.NewStore(pool),
		runs:        jobs.NewStore(pool),
		ready:       pool.Ping,
	}, nil
}

// seedMemory creates a tenant with default roles and, when credentials are
// configured, an admin employee who can log in.
func seedMemory(ctx context.Context, store *memstore.Store, roleService *roles.Service, cfg config.Config) (string, error) {
	tenantID := store.AddTenant()
	if _, err := roleService.SeedDefaultRolesIfEmpty(ctx, tenantID); err != nil {
		return "", err
	}
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return tenantID, nil
	}
	hash, err := auth.HashPassword(cfg.SeedAdminPassword)
	if err != nil {
		return "", fmt.Errorf("hash seed password: %w", err)
	}
	admin := store.AddEmployee(core.Employee{
		TenantID:   tenantID,
		FirstName:  "System",
		LastName:   "Admin",
		Email:      cfg.SeedAdminEmail,
		Department: "Administration",
		Position:   "Administrator",
		IsAdmin:    true,
	})
	store.AddUser(tenantID, admin.ID, cfg.SeedAdminEmail, hash)
	return tenantID, nil
}

func (a *App) Close() {
	if a.Jobs != nil {
		a.Jobs.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.stopTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.stopTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config) error {
	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Addr, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
