// Wizard HTTP handlers.
//
// This file exposes the multi-step wizards (clinic, staff, room):
//   - GET    /wizards/{kind}                 (schema)
//   - POST   /wizards/{kind}/navigate        (advance, retreat, jump)
//   - GET    /wizards/{kind}/drafts/{key}    (restore a draft)
//   - PUT    /wizards/{kind}/drafts/{key}    (autosave)
//   - DELETE /wizards/{kind}/drafts/{key}    (discard)
//
// Drafts are scoped to the caller's session, so another browser signed in as
// the same user starts clean and sign-out discards them.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/draft"
	"github.com/tbourn/facecloud/internal/services"
)

// draftKeyFor resolves the session-scoped draft key for name, or ""
// when name is empty.
func (h *Handlers) draftKeyFor(c *gin.Context, kind, name string) (string, bool) {
	if name == "" {
		return "", true
	}
	key, err := h.wizards.DraftKey(sessionID(c), kind, name)
	if err != nil {
		failErr(c, err, ErrCodeBadRequest)
		return "", false
	}
	return key, true
}

// GetWizard godoc
// @ID          getWizard
// @Summary     Wizard schema
// @Description Returns the steps, fields, and validation rules of a wizard.
// @Tags        Wizards
// @Produce     json
// @Security    BearerAuth
// @Param       kind  path      string  true  "Wizard"  Enums(clinic, staff, room)
// @Success     200   {object}  forms.Schema
// @Failure     404   {object}  handlers.ErrorResponse  "Unknown wizard"
// @Router      /wizards/{kind} [get]
func (h *Handlers) GetWizard(c *gin.Context) {
	s, err := h.wizards.Schema(c.Param("kind"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	ok(c, http.StatusOK, s)
}

// Navigate godoc
// @ID          navigateWizard
// @Summary     Move through a wizard
// @Description Advance validates the current step and moves to the next visible step; a failed validation keeps the step and returns per-field errors. Retreat and jump never validate. With ?draft=<name> the position and fields are autosaved.
// @Tags        Wizards
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       kind   path      string                     true   "Wizard"  Enums(clinic, staff, room)
// @Param       draft  query     string                     false  "Draft name to autosave"  example(new)
// @Param       body   body      services.NavigateRequest   true   "Navigation"
// @Success     200    {object}  services.NavigateResult
// @Failure     400    {object}  handlers.ErrorResponse  "Unknown action or step"
// @Failure     404    {object}  handlers.ErrorResponse  "Unknown wizard"
// @Router      /wizards/{kind}/navigate [post]
func (h *Handlers) Navigate(c *gin.Context) {
	kind := c.Param("kind")
	var req services.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, valid := h.draftKeyFor(c, kind, c.Query("draft"))
	if !valid {
		return
	}
	res, err := h.wizards.Navigate(c.Request.Context(), userID(c), kind, req, key)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, res)
}

// GetDraft godoc
// @ID          getDraft
// @Summary     Restore a wizard draft
// @Description Returns the saved draft, or an empty one. Upload fields are not persisted; their names are listed in missing.
// @Tags        Wizards
// @Produce     json
// @Security    BearerAuth
// @Param       kind  path      string  true  "Wizard"  Enums(clinic, staff, room)
// @Param       key   path      string  true  "Draft name"  example(new)
// @Success     200   {object}  draft.Draft
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid draft name"
// @Router      /wizards/{kind}/drafts/{key} [get]
func (h *Handlers) GetDraft(c *gin.Context) {
	key, valid := h.draftKeyFor(c, c.Param("kind"), c.Param("key"))
	if !valid {
		return
	}
	c.Header("Cache-Control", "no-store")
	ok(c, http.StatusOK, h.wizards.LoadDraft(c.Request.Context(), key))
}

// SaveDraft godoc
// @ID          saveDraft
// @Summary     Autosave a wizard draft
// @Description Writes are coalesced; the latest draft wins.
// @Tags        Wizards
// @Accept      json
// @Security    BearerAuth
// @Param       kind  path      string       true  "Wizard"  Enums(clinic, staff, room)
// @Param       key   path      string       true  "Draft name"  example(new)
// @Param       body  body      draft.Draft  true  "Draft"
// @Success     204   {string}  string  "No Content"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Router      /wizards/{kind}/drafts/{key} [put]
func (h *Handlers) SaveDraft(c *gin.Context) {
	key, valid := h.draftKeyFor(c, c.Param("kind"), c.Param("key"))
	if !valid {
		return
	}
	var d draft.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.wizards.SaveDraft(c.Request.Context(), key, d); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// DiscardDraft godoc
// @ID          discardDraft
// @Summary     Discard a wizard draft
// @Tags        Wizards
// @Security    BearerAuth
// @Param       kind  path      string  true  "Wizard"  Enums(clinic, staff, room)
// @Param       key   path      string  true  "Draft name"  example(new)
// @Success     204   {string}  string  "No Content"
// @Router      /wizards/{kind}/drafts/{key} [delete]
func (h *Handlers) DiscardDraft(c *gin.Context) {
	key, valid := h.draftKeyFor(c, c.Param("kind"), c.Param("key"))
	if !valid {
		return
	}
	if err := h.wizards.DiscardDraft(c.Request.Context(), key); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
