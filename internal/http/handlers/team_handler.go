// Staff and room HTTP handlers.
//
// This file exposes the resources created by the staff and room wizards:
//   - POST   /clinics/{id}/staff     (staff wizard; emails an invite)
//   - GET    /clinics/{id}/staff
//   - DELETE /staff/{id}
//   - POST   /locations/{id}/rooms   (room wizard)
//   - GET    /locations/{id}/rooms
//   - DELETE /rooms/{id}
//
// The staff wizard may also be submitted to /staff, letting the service
// assign the owner's only clinic.
package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/forms"
	"github.com/tbourn/facecloud/internal/http/middleware"
)

// StaffResponse is a created staff member. InviteLink is present only when
// the server exposes auth links (development).
type StaffResponse struct {
	domain.StaffMember
	InviteLink string `json:"invite_link,omitempty"`
}

// ListStaffResponse wraps a page of staff.
type ListStaffResponse struct {
	Staff      []domain.StaffMember `json:"staff"`
	Pagination Pagination           `json:"pagination"`
}

// ListRoomsResponse wraps a location's rooms.
type ListRoomsResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

// CreateStaff godoc
// @ID          createStaff
// @Summary     Submit the staff wizard
// @Description Validates the staff wizard and adds the member to the clinic. When the owner has exactly one clinic, POST /staff assigns it. The member receives an invite link. Supports the Idempotency-Key header.
// @Tags        Staff
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string                  true   "Clinic ID"  format(uuid)
// @Param       Idempotency-Key  header    string                  false  "Key for safe retries"
// @Param       body             body      handlers.SubmitRequest  true   "Wizard fields"
// @Success     201              {object}  handlers.StaffResponse
// @Failure     404              {object}  handlers.ErrorResponse  "Clinic not found"
// @Failure     409              {object}  handlers.ErrorResponse  "Duplicate staff member or no clinic"
// @Failure     422              {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /clinics/{id}/staff [post]
func (h *Handlers) CreateStaff(c *gin.Context) {
	if h.replay(c, nil) {
		middleware.ObserveWizard(forms.WizardStaff, "replayed")
		return
	}
	req, key, valid := h.submitted(c, forms.WizardStaff)
	if !valid {
		return
	}
	out, err := h.staff.Create(c.Request.Context(), userID(c), c.Param("id"), req.Fields, key)
	observeSubmission(forms.WizardStaff, err)
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	h.remember(c, out.Staff.ID, http.StatusCreated)

	resp := StaffResponse{StaffMember: *out.Staff}
	if h.opts.ExposeLinks && out.InviteToken != "" {
		q := url.Values{"token_hash": {out.InviteToken}, "type": {"invite"}}
		resp.InviteLink = h.opts.SiteURL + "/auth/confirm?" + q.Encode()
	}
	ok(c, http.StatusCreated, resp)
}

// ListStaff godoc
// @ID          listStaff
// @Summary     List a clinic's staff (paginated)
// @Tags        Staff
// @Produce     json
// @Security    BearerAuth
// @Param       id         path    string  true   "Clinic ID"  format(uuid)
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListStaffResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Clinic not found"
// @Router      /clinics/{id}/staff [get]
func (h *Handlers) ListStaff(c *gin.Context) {
	items, err := h.staff.List(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	pageItems, pg := paginate(c, items)
	ok(c, http.StatusOK, ListStaffResponse{Staff: pageItems, Pagination: pg})
}

// DeleteStaff godoc
// @ID          deleteStaff
// @Summary     Remove a staff member
// @Tags        Staff
// @Security    BearerAuth
// @Param       id   path      string  true  "Staff ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Staff member not found"
// @Router      /staff/{id} [delete]
func (h *Handlers) DeleteStaff(c *gin.Context) {
	if err := h.staff.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// CreateRoom godoc
// @ID          createRoom
// @Summary     Submit the room wizard
// @Description Validates the room wizard and adds the room to the location. Supports the Idempotency-Key header.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id               path      string                  true   "Location ID"  format(uuid)
// @Param       Idempotency-Key  header    string                  false  "Key for safe retries"
// @Param       body             body      handlers.SubmitRequest  true   "Wizard fields"
// @Success     201              {object}  domain.Room
// @Failure     404              {object}  handlers.ErrorResponse  "Location not found"
// @Failure     422              {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /locations/{id}/rooms [post]
func (h *Handlers) CreateRoom(c *gin.Context) {
	if h.replay(c, nil) {
		middleware.ObserveWizard(forms.WizardRoom, "replayed")
		return
	}
	req, key, valid := h.submitted(c, forms.WizardRoom)
	if !valid {
		return
	}
	room, err := h.rooms.Create(c.Request.Context(), userID(c), c.Param("id"), req.Fields, key)
	observeSubmission(forms.WizardRoom, err)
	if err != nil {
		failErr(c, err, ErrCodeCreateFailed)
		return
	}
	h.remember(c, room.ID, http.StatusCreated)
	ok(c, http.StatusCreated, room)
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List a location's rooms
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Location ID"  format(uuid)
// @Success     200  {object}  handlers.ListRoomsResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Location not found"
// @Router      /locations/{id}/rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	items, err := h.rooms.List(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.Room{}
	}
	ok(c, http.StatusOK, ListRoomsResponse{Rooms: items})
}

// DeleteRoom godoc
// @ID          deleteRoom
// @Summary     Remove a room
// @Tags        Rooms
// @Security    BearerAuth
// @Param       id   path      string  true  "Room ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{id} [delete]
func (h *Handlers) DeleteRoom(c *gin.Context) {
	if err := h.rooms.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
