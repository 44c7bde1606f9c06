// Auth HTTP handlers.
//
// This file exposes the account endpoints:
//   - POST /auth/magic-link   (email a sign-in or recovery link)
//   - GET  /auth/confirm      (landing page of emailed links)
//   - POST /auth/exchange     (one-time code for a session)
//   - POST /auth/sign-in      (email and password)
//   - POST /auth/sign-out
//   - GET  /auth/user
//   - PUT  /auth/password
//   - POST /auth/onboarding
//
// Sessions are returned in the body and also set as an HttpOnly cookie so a
// browser that followed an emailed link is signed in after the redirect.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/facecloud/internal/authflow"
	"github.com/tbourn/facecloud/internal/http/middleware"
	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/services"
)

//
// DTOs
//

// LinkResponse acknowledges a link request. Link is only present when the
// server runs with EXPOSE_AUTH_LINKS.
type LinkResponse struct {
	Message string `json:"message" example:"If the address can sign in, a link is on its way."`
	Link    string `json:"link,omitempty"`
}

// ExchangeRequest carries a one-time code.
type ExchangeRequest struct {
	Code string `json:"code" binding:"required" example:"Yk3v9..."`
}

// SignInRequest carries password credentials.
type SignInRequest struct {
	Email    string `json:"email" binding:"required" example:"owner@bondiclinic.com.au"`
	Password string `json:"password" binding:"required"`
}

// PasswordRequest sets a new password.
type PasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// ConfirmResponse is returned by /auth/confirm to clients that accept JSON.
// CleanURL is the link with its credentials removed, for history.replaceState.
type ConfirmResponse struct {
	Session  *identity.Session `json:"session"`
	Redirect string            `json:"redirect" example:"/dashboard"`
	CleanURL string            `json:"clean_url" example:"https://app.facecloud.com.au/auth/confirm"`
}

const msgLinkSent = "If the address can sign in, a link is on its way."

//
// Helpers
//

// setSessionCookie stores the access token in an HttpOnly cookie.
func (h *Handlers) setSessionCookie(c *gin.Context, sess *identity.Session) {
	maxAge := int(sess.ExpiresAt.Sub(h.now()).Seconds())
	if limit := int(h.opts.SessionTTL.Seconds()); maxAge <= 0 || maxAge > limit {
		maxAge = limit
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, sess.AccessToken, maxAge, "/", "", h.opts.SecureCookie, true)
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.opts.SecureCookie, true)
}

// requestURL rebuilds the absolute URL the client requested.
func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

//
// Handlers
//

// RequestLink godoc
// @ID          requestAuthLink
// @Summary     Email a sign-in link
// @Description Issues a magic link (default) or a recovery link. The response never reveals whether the address has an account.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      services.LinkRequest  true  "Link request"
// @Success     202   {object}  handlers.LinkResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid email or link type"
// @Failure     429   {object}  handlers.ErrorResponse  "Too many requests"
// @Router      /auth/magic-link [post]
func (h *Handlers) RequestLink(c *gin.Context) {
	var req services.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	link, err := h.auth.RequestLink(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unsupported link type")
			return
		}
		failErr(c, err, ErrCodeInternal)
		return
	}
	resp := LinkResponse{Message: msgLinkSent}
	if h.opts.ExposeLinks {
		resp.Link = link
	}
	ok(c, http.StatusAccepted, resp)
}

// Confirm godoc
// @ID          confirmAuthLink
// @Summary     Confirm an emailed link
// @Description Landing page of emailed links. Verifies the token once, sets the session cookie, and redirects (303) to the password reset page for recovery links, onboarding for invites, or the link's redirect target. Clients sending Accept: application/json get the session in the body instead.
// @Tags        Auth
// @Produce     json
// @Param       token_hash   query  string  false  "Link token"
// @Param       type         query  string  false  "Token type"  Enums(magiclink, recovery, invite)
// @Param       code         query  string  false  "One-time code (code flow)"
// @Param       redirectTo   query  string  false  "Relative path to land on (aliases: redirect_to, next)"
// @Success     200  {object}  handlers.ConfirmResponse
// @Success     303  {string}  string  "Redirect to the landing page"
// @Failure     400  {object}  handlers.ErrorResponse  "Link without a token"
// @Failure     401  {object}  handlers.ErrorResponse  "Link invalid, expired, or already used"
// @Router      /auth/confirm [get]
func (h *Handlers) Confirm(c *gin.Context) {
	sink := authflow.SinkFunc(func(_ context.Context, sess *identity.Session) error {
		h.setSessionCookie(c, sess)
		return nil
	})
	res, err := h.auth.Confirm(c.Request.Context(), requestURL(c), sink)
	if err != nil {
		var ae *authflow.AuthExchangeError
		switch {
		case errors.As(err, &ae) && ae.Timeout:
			middleware.ObserveAuthLink("timeout")
		case errors.Is(err, authflow.ErrNoToken):
			middleware.ObserveAuthLink("missing")
		default:
			middleware.ObserveAuthLink("failed")
		}
		failErr(c, err, ErrCodeAuthExchange)
		return
	}
	middleware.ObserveAuthLink("established")
	c.Header("Cache-Control", "no-store")
	if wantsJSON(c) {
		ok(c, http.StatusOK, ConfirmResponse{Session: res.Session, Redirect: res.Redirect, CleanURL: res.CleanURL})
		return
	}
	c.Redirect(http.StatusSeeOther, res.Redirect)
}

// Exchange godoc
// @ID          exchangeCode
// @Summary     Exchange a one-time code
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ExchangeRequest  true  "Code"
// @Success     200   {object}  identity.Session
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Code invalid or used"
// @Router      /auth/exchange [post]
func (h *Handlers) Exchange(c *gin.Context) {
	var req ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}
	sess, err := h.auth.Exchange(c.Request.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		failErr(c, err, ErrCodeAuthExchange)
		return
	}
	h.setSessionCookie(c, sess)
	ok(c, http.StatusOK, sess)
}

// SignIn godoc
// @ID          signIn
// @Summary     Sign in with a password
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignInRequest  true  "Credentials"
// @Success     200   {object}  identity.Session
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid email or password"
// @Router      /auth/sign-in [post]
func (h *Handlers) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}
	sess, err := h.auth.SignIn(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	h.setSessionCookie(c, sess)
	ok(c, http.StatusOK, sess)
}

// SignOut godoc
// @ID          signOut
// @Summary     Sign out
// @Description Revokes the current session and discards its wizard drafts.
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /auth/sign-out [post]
func (h *Handlers) SignOut(c *gin.Context) {
	if err := h.auth.SignOut(c.Request.Context(), c.GetString(middleware.CtxAccessToken)); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	h.clearSessionCookie(c)
	noContent(c)
}

// CurrentUser godoc
// @ID          currentUser
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /auth/user [get]
func (h *Handlers) CurrentUser(c *gin.Context) {
	sess, found := middleware.SessionFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	ok(c, http.StatusOK, sess.User)
}

// SetPassword godoc
// @ID          setPassword
// @Summary     Set a new password
// @Description Used after a recovery link or during onboarding.
// @Tags        Auth
// @Accept      json
// @Security    BearerAuth
// @Param       body  body      handlers.PasswordRequest  true  "New password"
// @Success     204   {string}  string  "No Content"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422   {object}  handlers.ErrorResponse  "Password too short"
// @Router      /auth/password [put]
func (h *Handlers) SetPassword(c *gin.Context) {
	var req PasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "password required")
		return
	}
	if err := h.auth.SetPassword(c.Request.Context(), userID(c), req.Password); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// CompleteOnboarding godoc
// @ID          completeOnboarding
// @Summary     Finish onboarding
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /auth/onboarding [post]
func (h *Handlers) CompleteOnboarding(c *gin.Context) {
	if err := h.auth.CompleteOnboarding(c.Request.Context(), userID(c)); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
