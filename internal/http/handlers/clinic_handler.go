// Clinic HTTP handlers.
//
// This file exposes the clinic resources:
//   - POST   /clinics        (clinic wizard submission, idempotent)
//   - GET    /clinics        (list, paginated, weak ETag)
//   - GET    /clinics/{id}
//   - PUT    /clinics/{id}   (edit contact details)
//   - DELETE /clinics/{id}
//
// Wizard submissions share the replay logic defined here: when the
// Idempotency-Key of a completed submission is presented again, the stored
// resource is returned with `Idempotency-Replayed: true` and nothing is
// created.
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/http/middleware"
	"github.com/tbourn/facecloud/internal/services"
	"github.com/tbourn/facecloud/internal/utils"
)

//
// DTOs
//

// SubmitRequest is the body of a wizard submission.
type SubmitRequest struct {
	// Fields holds every field entered across the wizard's steps.
	Fields map[string]any `json:"fields"`
	// Draft names the autosaved draft to discard on success.
	Draft string `json:"draft,omitempty" example:"new"`
}

// ListClinicsResponse wraps a page of clinics and pagination information.
type ListClinicsResponse struct {
	Clinics    []domain.Clinic `json:"clinics"`
	Pagination Pagination      `json:"pagination"`
}

// ReplayResponse is returned for a replayed submission whose resource can no
// longer be loaded.
type ReplayResponse struct {
	ID string `json:"id"`
}

//
// Idempotency
//

// replay answers a repeated submission from its stored outcome and reports
// whether it did. fetch loads the stored resource; nil answers with its id.
func (h *Handlers) replay(c *gin.Context, fetch func(ctx context.Context, id string) (any, error)) bool {
	rp, found := middleware.ReplayOf(c)
	if !found {
		return false
	}
	var body any = ReplayResponse{ID: rp.ResourceID}
	if fetch != nil {
		if v, err := fetch(c.Request.Context(), rp.ResourceID); err == nil {
			body = v
		}
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, rp.Status, body)
	return true
}

// remember stores the outcome of a submission made with an idempotency key.
// Failures are logged and otherwise ignored.
func (h *Handlers) remember(c *gin.Context, resourceID string, status int) {
	key, scope, has := middleware.IdempotencyKey(c)
	if h.idem == nil || !has {
		return
	}
	if err := h.idem.Remember(c.Request.Context(), userID(c), scope, key, resourceID, status, h.opts.IdempotencyTTL); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
	}
}

// submitted binds a SubmitRequest and resolves its draft key.
func (h *Handlers) submitted(c *gin.Context, kind string) (SubmitRequest, string, bool) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Fields == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "fields required")
		return req, "", false
	}
	key, valid := h.draftKeyFor(c, kind, req.Draft)
	return req, key, valid
}

// observeSubmission counts a wizard outcome.
func observeSubmission(kind string, err error) {
	switch {
	case err == nil:
		middleware.ObserveWizard(kind, "created")
	case isValidation(err):
		middleware.ObserveWizard(kind, "invalid")
	default:
		middleware.ObserveWizard(kind, "failed")
	}
}

//
// Handlers
//

// CreateClinic godoc
// @ID          createClinic
// @Summary     Submit the clinic wizard
// @Description Validates every visible step, then creates the clinic, its first location, and operating hours. Supports the Idempotency-Key header.
// @Tags        Clinics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                    false  "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body      handlers.SubmitRequest    true   "Wizard fields"
// @Success     201              {object}  domain.Clinic
// @Header      201              {string}  Location  "URL of the clinic"
// @Success     200              {object}  domain.Clinic  "Replayed submission"
// @Failure     400              {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422              {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500              {object}  handlers.ErrorResponse  "Internal error"
// @Router      /clinics [post]
func (h *Handlers) CreateClinic(c *gin.Context) {
	uid := userID(c)
	if h.replay(c, func(ctx context.Context, id string) (any, error) { return h.clinics.Get(ctx, uid, id) }) {
		middleware.ObserveWizard(forms.WizardClinic, "replayed")
		return
	}
	req, key, valid := h.submitted(c, forms.WizardClinic)
	if !valid {
		return
	}
	cl, err := h.clinics.Create(c.Request.Context(), uid, req.Fields, key)
	observeSubmission(forms.WizardClinic, err)
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	h.remember(c, cl.ID, http.StatusCreated)
	c.Header("Location", c.Request.URL.Path+"/"+cl.ID)
	ok(c, http.StatusCreated, cl)
}

// ListClinics godoc
// @ID          listClinics
// @Summary     List clinics (paginated)
// @Description Returns a page of the caller's clinics. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Clinics
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListClinicsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /clinics [get]
func (h *Handlers) ListClinics(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.clinics.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		page, size := utils.ParsePage(c.Query("page"), c.Query("page_size"))
		etag := fmt.Sprintf(`W/"clinics:%s:%d:%d:%d:%d"`, uid, count, ts, page, size)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.clinics.List(ctx, uid)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	pageItems, pg := paginate(c, items)
	ok(c, http.StatusOK, ListClinicsResponse{Clinics: pageItems, Pagination: pg})
}

// GetClinic godoc
// @ID          getClinic
// @Summary     Get a clinic
// @Tags        Clinics
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Clinic ID"  format(uuid)
// @Success     200  {object}  domain.Clinic
// @Failure     404  {object}  handlers.ErrorResponse  "Clinic not found"
// @Router      /clinics/{id} [get]
func (h *Handlers) GetClinic(c *gin.Context) {
	cl, err := h.clinics.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, cl)
}

// UpdateClinic godoc
// @ID          updateClinic
// @Summary     Edit clinic details
// @Description Updates name, email, phone, or ABN with the clinic wizard's details rules.
// @Tags        Clinics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                true  "Clinic ID"  format(uuid)
// @Param       body  body      services.ClinicPatch  true  "Changes"
// @Success     200   {object}  domain.Clinic
// @Failure     404   {object}  handlers.ErrorResponse  "Clinic not found"
// @Failure     422   {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /clinics/{id} [put]
func (h *Handlers) UpdateClinic(c *gin.Context) {
	var p services.ClinicPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cl, err := h.clinics.Update(c.Request.Context(), userID(c), c.Param("id"), p)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, cl)
}

// DeleteClinic godoc
// @ID          deleteClinic
// @Summary     Delete a clinic
// @Tags        Clinics
// @Security    BearerAuth
// @Param       id   path      string  true  "Clinic ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Clinic not found"
// @Router      /clinics/{id} [delete]
func (h *Handlers) DeleteClinic(c *gin.Context) {
	if err := h.clinics.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
