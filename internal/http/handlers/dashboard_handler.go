// Dashboard HTTP handlers.
//
// This file exposes:
//   - GET /dashboard/metrics   (cached clinic summary)
//   - GET /preferences         (sidebar and timeframe)
//   - PUT /preferences         (partial update)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/domain"
)

// PreferencesRequest is a partial update; omitted fields keep their value.
type PreferencesRequest struct {
	SidebarCollapsed *bool   `json:"sidebar_collapsed,omitempty" example:"true"`
	Timeframe        *string `json:"timeframe,omitempty"         example:"month"`
}

// GetMetrics godoc
// @ID          getDashboardMetrics
// @Summary     Dashboard metrics
// @Description Returns the clinic summary for a timeframe. Without clinic_id the first clinic is used; without timeframe the saved preference is used.
// @Tags        Dashboard
// @Produce     json
// @Security    BearerAuth
// @Param       clinic_id  query     string  false  "Clinic ID"  format(uuid)
// @Param       timeframe  query     string  false  "Timeframe"  Enums(day, week, month, year)
// @Success     200        {object}  domain.Metrics
// @Failure     400        {object}  handlers.ErrorResponse  "Unknown timeframe"
// @Failure     404        {object}  handlers.ErrorResponse  "Clinic not found"
// @Failure     502        {object}  handlers.ErrorResponse  "Metrics unavailable"
// @Router      /dashboard/metrics [get]
func (h *Handlers) GetMetrics(c *gin.Context) {
	m, err := h.dashboard.Metrics(c.Request.Context(), userID(c), c.Query("clinic_id"), c.Query("timeframe"))
	if err != nil {
		failErr(c, err, ErrCodeFetchFailed)
		return
	}
	c.Header("Cache-Control", "private, no-cache")
	ok(c, http.StatusOK, m)
}

// GetPreferences godoc
// @ID          getPreferences
// @Summary     UI preferences
// @Tags        Dashboard
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.Preferences
// @Router      /preferences [get]
func (h *Handlers) GetPreferences(c *gin.Context) {
	p, err := h.prefs.Get(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdatePreferences godoc
// @ID          updatePreferences
// @Summary     Update UI preferences
// @Tags        Dashboard
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.PreferencesRequest  true  "Changes"
// @Success     200   {object}  domain.Preferences
// @Failure     400   {object}  handlers.ErrorResponse  "Unknown timeframe"
// @Router      /preferences [put]
func (h *Handlers) UpdatePreferences(c *gin.Context) {
	var req PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	p, err := h.prefs.Update(c.Request.Context(), userID(c), func(p *domain.Preferences) {
		if req.SidebarCollapsed != nil {
			p.SidebarCollapsed = *req.SidebarCollapsed
		}
		if req.Timeframe != nil {
			p.Timeframe = domain.Timeframe(*req.Timeframe)
		}
	})
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}
