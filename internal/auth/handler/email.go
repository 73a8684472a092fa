package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sessiongate/internal/auth"
	"sessiongate/internal/auth/credentials"
	"sessiongate/internal/clientip"
	"sessiongate/internal/logger"
	"sessiongate/internal/session"
	"sessiongate/internal/user"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string          `json:"token"`
	User  user.PublicUser `json:"user"`
}

type sessionResponse struct {
	Session credentials.SessionView `json:"session"`
	User    user.PublicUser         `json:"user"`
}

func (h *Handler) signUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body")
		return
	}

	u, err := h.service.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	switch {
	case errors.Is(err, credentials.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email")
		return
	case errors.Is(err, credentials.ErrWeakPassword):
		fail(c, http.StatusBadRequest, "INVALID_PASSWORD_LENGTH", "Password must be between 8 and 72 characters")
		return
	case errors.Is(err, credentials.ErrAlreadyRegistered):
		fail(c, http.StatusUnprocessableEntity, "USER_ALREADY_EXISTS", "User already exists")
		return
	case err != nil:
		logger.Error("sign-up failed", map[string]any{
			"error": logger.ErrorDetail(err),
		})
		fail(c, http.StatusInternalServerError, "FAILED_TO_CREATE_USER", "Failed to create user")
		return
	}

	h.issue(c, http.StatusCreated, *u)
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body")
		return
	}

	u, err := h.service.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, http.StatusUnauthorized, "INVALID_EMAIL_OR_PASSWORD", "Invalid email or password")
		return
	}

	h.issue(c, http.StatusOK, *u)
}

func (h *Handler) issue(c *gin.Context, status int, u user.User) {
	issued, err := h.service.Issue(
		c.Request.Context(),
		u,
		clientip.Resolve(c.Request),
		c.Request.UserAgent(),
	)
	if err != nil {
		logger.Error("session issue failed", map[string]any{
			"error": logger.ErrorDetail(err),
		})
		fail(c, http.StatusInternalServerError, "FAILED_TO_CREATE_SESSION", "Failed to create session")
		return
	}

	session.SetCookie(c.Writer, issued.Signed, issued.Session.ExpiresAt, h.service.CookieOptions())

	logger.Info("session issued", map[string]any{
		"user_id": u.ID,
		"ip":      issued.Session.IPAddress,
	})

	c.JSON(status, tokenResponse{Token: issued.Signed, User: issued.User})
}

func (h *Handler) signOut(c *gin.Context) {
	err := h.service.SignOut(c.Request.Context(), c.Request)

	// the client copy goes away either way
	session.ClearCookie(c.Writer, h.service.CookieOptions())

	if err != nil {
		logger.Error("sign-out failed", map[string]any{
			"error": logger.ErrorDetail(err),
		})
		fail(c, http.StatusInternalServerError, "FAILED_TO_SIGN_OUT", "Failed to sign out")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// getSession answers null for every request that does not resolve to a
// live session, including ones whose lookup failed.
func (h *Handler) getSession(c *gin.Context) {
	res, err := h.service.GetSession(c.Request.Context(), c.Request)
	if err != nil {
		logger.Warn("get-session lookup failed", map[string]any{
			"error": logger.ErrorDetail(err),
		})
	}
	if err != nil || res == nil {
		c.JSON(http.StatusOK, nil)
		return
	}

	if res.Refreshed {
		h.RefreshCookie(c.Writer, res)
	}

	c.JSON(http.StatusOK, sessionResponse{
		Session: credentials.ViewOf(res.Session),
		User:    res.User,
	})
}

// RefreshCookie re-issues the credential for a session whose expiry a lookup
// just extended, so the browser copy does not lapse before the stored one.
func (h *Handler) RefreshCookie(w http.ResponseWriter, res *auth.Result) {
	session.SetCookie(w, h.service.Sign(res.Session.Token), res.Session.ExpiresAt, h.service.CookieOptions())
}
