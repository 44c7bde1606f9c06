// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic router setup; all dependencies injected
//   - Account endpoints get their own, stricter rate limit and no-store caching
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/facecloud/internal/config"
	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/draft"
	"github.com/tbourn/facecloud/internal/http/handlers"
	"github.com/tbourn/facecloud/internal/http/middleware"
	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/metricscache"
	"github.com/tbourn/facecloud/internal/repo"
	"github.com/tbourn/facecloud/internal/services"
	"github.com/tbourn/facecloud/internal/uistate"
)

// repoShim adapts the repository free functions to the repository
// interfaces expected by the services. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type repoShim struct{}

// CreateClinic proxies repo.CreateClinic.
func (repoShim) CreateClinic(ctx context.Context, db *gorm.DB, c *domain.Clinic, loc *domain.Location, hours []domain.OperatingHour) error {
	return repo.CreateClinic(ctx, db, c, loc, hours)
}

// ListClinics proxies repo.ListClinics.
func (repoShim) ListClinics(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Clinic, error) {
	return repo.ListClinics(ctx, db, ownerID)
}

// ListClinicIDs proxies repo.ListClinicIDs (wizard facts, dashboard scope).
func (repoShim) ListClinicIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]string, error) {
	return repo.ListClinicIDs(ctx, db, ownerID)
}

// ListLocationIDs proxies repo.ListLocationIDs.
func (repoShim) ListLocationIDs(ctx context.Context, db *gorm.DB, ownerID string) ([]string, error) {
	return repo.ListLocationIDs(ctx, db, ownerID)
}

// GetClinic proxies repo.GetClinic.
func (repoShim) GetClinic(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Clinic, error) {
	return repo.GetClinic(ctx, db, id, ownerID)
}

// UpdateClinic proxies repo.UpdateClinic.
func (repoShim) UpdateClinic(ctx context.Context, db *gorm.DB, id, ownerID string, updates map[string]any) error {
	return repo.UpdateClinic(ctx, db, id, ownerID, updates)
}

// DeleteClinic proxies repo.DeleteClinic.
func (repoShim) DeleteClinic(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	return repo.DeleteClinic(ctx, db, id, ownerID)
}

// GetLocation proxies repo.GetLocation.
func (repoShim) GetLocation(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Location, error) {
	return repo.GetLocation(ctx, db, id, ownerID)
}

// CreateStaff proxies repo.CreateStaff.
func (repoShim) CreateStaff(ctx context.Context, db *gorm.DB, s *domain.StaffMember) error {
	return repo.CreateStaff(ctx, db, s)
}

// ListStaff proxies repo.ListStaff.
func (repoShim) ListStaff(ctx context.Context, db *gorm.DB, clinicID string) ([]domain.StaffMember, error) {
	return repo.ListStaff(ctx, db, clinicID)
}

// LinkStaffUser proxies repo.LinkStaffUser.
func (repoShim) LinkStaffUser(ctx context.Context, db *gorm.DB, staffID, userID string) error {
	return repo.LinkStaffUser(ctx, db, staffID, userID)
}

// DeleteStaff proxies repo.DeleteStaff.
func (repoShim) DeleteStaff(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	return repo.DeleteStaff(ctx, db, id, ownerID)
}

// CreateRoom proxies repo.CreateRoom.
func (repoShim) CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error {
	return repo.CreateRoom(ctx, db, r)
}

// ListRooms proxies repo.ListRooms.
func (repoShim) ListRooms(ctx context.Context, db *gorm.DB, locationID string) ([]domain.Room, error) {
	return repo.ListRooms(ctx, db, locationID)
}

// DeleteRoom proxies repo.DeleteRoom.
func (repoShim) DeleteRoom(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	return repo.DeleteRoom(ctx, db, id, ownerID)
}

// Deps are the long-lived components RegisterRoutes builds services on. The
// caller owns their lifecycle (draft store Close, DB close).
type Deps struct {
	DB       *gorm.DB
	Drafts   *draft.Store
	Identity *identity.Service
	// Idempotency defaults to a repo over DB.
	Idempotency *repo.IdempotencyRepo
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS and security
// headers, health, metrics, and docs endpoints, and then mounts the public
// API under cfg.APIBasePath. The returned function detaches the sign-out
// listener.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and link-token scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, security headers, and gzip
//
// Per group:
//   - /auth: per-IP rate limiter, no-store
//   - authenticated: RequireAuth → idempotency → per-user rate
//     limiter (bypassed on replay)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) func() {
	r.HandleMethodNotAllowed = true
	db := deps.DB

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Cookie", "Set-Cookie"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/identity/drafts
	idp := deps.Identity
	shim := repoShim{}
	idemRepo := deps.Idempotency
	if idemRepo == nil {
		idemRepo = repo.NewIdempotencyRepo(db)
	}
	cache := metricscache.New[domain.Metrics]("dashboard", cfg.Wizard.MetricsCacheTTL, clockwork.NewRealClock())
	prefs := uistate.New(db)

	authSvc := services.NewAuthService(idp, cfg.Auth.SiteURL, cfg.Auth.VerifyTimeout)
	authSvc.Log = log.With().Str("component", "auth").Logger()
	unsubscribe := services.ClearDraftsOnSignOut(idp, deps.Drafts, authSvc.Log)

	h := handlers.New(handlers.Services{
		Auth:        authSvc,
		Wizards:     services.NewWizardService(db, shim, deps.Drafts),
		Clinics:     services.NewClinicService(db, shim, deps.Drafts, cache),
		Staff:       services.NewStaffService(db, shim, shim, idp, deps.Drafts, cache),
		Rooms:       services.NewRoomService(db, shim, shim, deps.Drafts, cache),
		Dashboard:   services.NewDashboardService(db, shim, cache, prefs),
		Preferences: prefs,
		Idempotency: idemRepo,
	}, handlers.Options{
		ExposeLinks:    cfg.Auth.ExposeLinks,
		SiteURL:        cfg.Auth.SiteURL,
		SecureCookie:   cfg.Security.EnableHSTS,
		SessionTTL:     cfg.Auth.SessionTTL,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"

	// Account endpoints: per-IP bucket, never cached.
	authLimiter := middleware.NewRateLimiter(cfg.Auth.RateRPS, cfg.Auth.RateBurst, middleware.KeyByIP("auth"))
	pub := api.Group("/auth", authLimiter.Handler(), middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}))
	{
		pub.POST("/magic-link", h.RequestLink)
		pub.GET("/confirm", h.Confirm)
		pub.POST("/exchange", h.Exchange)
		pub.POST("/sign-in", h.SignIn)
	}

	idem := middleware.Idempotency(func(ctx context.Context, userID, scope, key string) (middleware.Replay, bool) {
		rec, err := idemRepo.Find(ctx, userID, scope, key)
		if err != nil {
			return middleware.Replay{}, false
		}
		return middleware.Replay{ResourceID: rec.ResourceID, Status: rec.Status}, true
	})
	userLimiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	authed := api.Group("", middleware.RequireAuth(idp), idem, userLimiter.Handler())
	{
		// Account
		account := authed.Group("/auth", middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}))
		account.POST("/sign-out", h.SignOut)
		account.GET("/user", h.CurrentUser)
		account.PUT("/password", h.SetPassword)
		account.POST("/onboarding", h.CompleteOnboarding)

		// Wizards
		authed.GET("/wizards/:kind", h.GetWizard)
		authed.POST("/wizards/:kind/navigate", h.Navigate)
		authed.GET("/wizards/:kind/drafts/:key", h.GetDraft)
		authed.PUT("/wizards/:kind/drafts/:key", h.SaveDraft)
		authed.DELETE("/wizards/:kind/drafts/:key", h.DiscardDraft)

		// Clinics
		authed.POST("/clinics", h.CreateClinic)
		authed.GET("/clinics", h.ListClinics)
		authed.GET("/clinics/:id", h.GetClinic)
		authed.PUT("/clinics/:id", h.UpdateClinic)
		authed.DELETE("/clinics/:id", h.DeleteClinic)

		// Staff
		authed.POST("/clinics/:id/staff", h.CreateStaff)
		authed.GET("/clinics/:id/staff", h.ListStaff)
		authed.POST("/staff", h.CreateStaff)
		authed.DELETE("/staff/:id", h.DeleteStaff)

		// Rooms
		authed.POST("/locations/:id/rooms", h.CreateRoom)
		authed.GET("/locations/:id/rooms", h.ListRooms)
		authed.DELETE("/rooms/:id", h.DeleteRoom)

		// Dashboard
		authed.GET("/dashboard/metrics", h.GetMetrics)
		prefsGroup := authed.Group("/preferences", middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}))
		prefsGroup.GET("", h.GetPreferences)
		prefsGroup.PUT("", h.UpdatePreferences)
	}

	return unsubscribe
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// allowed without credentials; with one, matching origins are echoed and
// cookies are allowed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	headers := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	expose := []string{"X-Request-ID", "Content-Length", "ETag", "Location", "Idempotency-Replayed"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     headers,
				ExposeHeaders:    expose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     headers,
			ExposeHeaders:    expose,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
