package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/agentgrid/tenancy-plane/internal/api/handlers"
	"github.com/agentgrid/tenancy-plane/internal/api/middleware"
	"github.com/agentgrid/tenancy-plane/internal/auth"
	"github.com/agentgrid/tenancy-plane/internal/config"
	"github.com/agentgrid/tenancy-plane/internal/database"
	"github.com/agentgrid/tenancy-plane/internal/tenancy"
)

type Router struct {
	mux         *chi.Mux
	db          *pgxpool.Pool
	redis       *redis.Client
	cfg         *config.Config
	sessions    *database.SessionFactory
	registry    *tenancy.Registry
	provisioner *tenancy.Provisioner
	resolver    *tenancy.Resolver
	jwt         *auth.JWTMiddleware
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, tenantMigrator *database.Migrator) *Router {
	sessions := database.NewSessionFactory(db, cfg.Database.ControlSchema)

	var cache *tenancy.Cache
	if rdb != nil {
		cache = tenancy.NewCache(rdb, time.Duration(cfg.Tenancy.CacheTTLSecs)*time.Second)
	}
	registry := tenancy.NewRegistry(sessions, cache)
	ddl := tenancy.NewPoolDDL(db, sessions, tenantMigrator)

	return &Router{
		mux:         chi.NewRouter(),
		db:          db,
		redis:       rdb,
		cfg:         cfg,
		sessions:    sessions,
		registry:    registry,
		provisioner: tenancy.NewProvisioner(registry, ddl),
		resolver: tenancy.NewResolver(
			registry, cfg.Auth.TenantHeader, auth.TenantClaim, cfg.Tenancy.ExemptPaths),
		jwt: auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware. Auth runs before the resolver so the token claim
	// is available as a hint source; the resolver runs before any route
	// that may touch tenant data.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(float64(rt.cfg.Server.RateLimitRPS), rt.cfg.Server.RateLimitBurst)
	r.Use(rl.Limit)

	r.Use(rt.jwt.Authenticate)
	r.Use(rt.resolver.Middleware)

	// Health endpoints (exempt, no tenant)
	health := handlers.NewHealthHandler(rt.sessions, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Platform administration (exempt, control namespace)
	tenantH := handlers.NewTenantHandler(rt.registry, rt.provisioner)
	r.Route("/platform/tenants", func(r chi.Router) {
		r.Post("/", tenantH.Create)
		r.Get("/", tenantH.List)
		r.Get("/{slug}", tenantH.Get)
		r.Post("/{slug}/suspend", tenantH.Suspend)
		r.Post("/{slug}/activate", tenantH.Activate)
		r.Delete("/{slug}", tenantH.Delete)
	})

	// Tenant-scoped API
	infoH := handlers.NewTenantInfoHandler(rt.sessions)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tenant", infoH.Current)
	})

	return r
}
