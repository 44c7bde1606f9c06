// Package handlers exposes the FaceCloud REST API.
//
// Handlers are transport-thin: they bind input, read the authenticated user
// and session set by middleware.RequireAuth, call application services, and
// translate results into HTTP responses (including conditional and replayed
// responses). Service contracts are declared here so the handlers can be
// tested against fakes.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/authflow"
	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/draft"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/http/middleware"
	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/services"
	"github.com/tbourn/facecloud/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService covers the account flows.
type AuthService interface {
	RequestLink(ctx context.Context, req services.LinkRequest) (string, error)
	Confirm(ctx context.Context, rawURL string, sink authflow.SessionSink) (*authflow.Result, error)
	Exchange(ctx context.Context, code string) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	SetPassword(ctx context.Context, userID, password string) error
	CompleteOnboarding(ctx context.Context, userID string) error
}

// WizardService serves schemas, navigation, and drafts.
type WizardService interface {
	Schema(kind string) (*forms.Schema, error)
	DraftKey(sessionID, kind, name string) (string, error)
	Navigate(ctx context.Context, ownerID, kind string, req services.NavigateRequest, draftKey string) (*services.NavigateResult, error)
	LoadDraft(ctx context.Context, key string) draft.Draft
	SaveDraft(ctx context.Context, key string, d draft.Draft) error
	DiscardDraft(ctx context.Context, key string) error
}

// ClinicService manages clinics.
type ClinicService interface {
	Create(ctx context.Context, ownerID string, fields map[string]any, draftKey string) (*domain.Clinic, error)
	List(ctx context.Context, ownerID string) ([]domain.Clinic, error)
	Stats(ctx context.Context, ownerID string) (int64, *time.Time, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Clinic, error)
	Update(ctx context.Context, ownerID, id string, p services.ClinicPatch) (*domain.Clinic, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// StaffService manages staff members.
type StaffService interface {
	Create(ctx context.Context, ownerID, clinicID string, fields map[string]any, draftKey string) (*services.StaffInvite, error)
	List(ctx context.Context, ownerID, clinicID string) ([]domain.StaffMember, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// RoomService manages treatment rooms.
type RoomService interface {
	Create(ctx context.Context, ownerID, locationID string, fields map[string]any, draftKey string) (*domain.Room, error)
	List(ctx context.Context, ownerID, locationID string) ([]domain.Room, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// DashboardService computes dashboard metrics.
type DashboardService interface {
	Metrics(ctx context.Context, ownerID, clinicID, timeframe string) (domain.Metrics, error)
}

// PreferenceStore holds per-user UI preferences.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (domain.Preferences, error)
	Update(ctx context.Context, userID string, mutate func(*domain.Preferences)) (domain.Preferences, error)
}

// IdempotencyStore records completed wizard submissions. Replays are found
// by middleware.Idempotency before the handler runs.
type IdempotencyStore interface {
	Remember(ctx context.Context, userID, scope, key, resourceID string, status int, ttl time.Duration) error
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Idempotency may be nil.
type Services struct {
	Auth        AuthService
	Wizards     WizardService
	Clinics     ClinicService
	Staff       StaffService
	Rooms       RoomService
	Dashboard   DashboardService
	Preferences PreferenceStore
	Idempotency IdempotencyStore
}

// Options tunes handler behavior.
type Options struct {
	// ExposeLinks returns issued links in API responses (development only).
	ExposeLinks bool
	// SiteURL is the base of links returned when ExposeLinks is set.
	SiteURL string
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
	// SessionTTL bounds the session cookie lifetime.
	SessionTTL time.Duration
	// IdempotencyTTL is how long a submission key replays.
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	auth      AuthService
	wizards   WizardService
	clinics   ClinicService
	staff     StaffService
	rooms     RoomService
	dashboard DashboardService
	prefs     PreferenceStore
	idem      IdempotencyStore
	opts      Options
	now       func() time.Time
}

// New constructs Handlers bound to the given services.
func New(s Services, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	return &Handlers{
		auth:      s.Auth,
		wizards:   s.Wizards,
		clinics:   s.Clinics,
		staff:     s.Staff,
		rooms:     s.Rooms,
		dashboard: s.Dashboard,
		prefs:     s.Preferences,
		idem:      s.Idempotency,
		opts:      opts,
		now:       time.Now,
	}
}

// userID returns the user set by RequireAuth.
func userID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserID)
}

// sessionID returns the session set by RequireAuth; drafts are keyed by it.
func sessionID(c *gin.Context) string {
	return c.GetString(middleware.CtxSessionID)
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// paginate returns the page of items selected by the page and page_size
// query params and its metadata.
func paginate[T any](c *gin.Context, items []T) ([]T, Pagination) {
	page, size := utils.ParsePage(c.Query("page"), c.Query("page_size"))
	total := len(items)
	lo, hi, pages := utils.Window(total, page, size)
	out := items[lo:hi]
	if out == nil {
		out = []T{}
	}
	return out, Pagination{
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}
