package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"sessiongate/internal/clientip"
	"sessiongate/internal/logger"
	"sessiongate/internal/session"
)

func (h *Handler) socialLogin(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil || h.resolver == nil {
		fail(c, http.StatusNotFound, "PROVIDER_NOT_FOUND", "Provider not found")
		return
	}

	state, err := h.generateState(c)
	if err != nil {
		fail(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Failed to start sign-in")
		return
	}

	_, codeChallenge, err := h.generatePKCE(c)
	if err != nil {
		fail(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Failed to start sign-in")
		return
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil || h.resolver == nil {
		fail(c, http.StatusNotFound, "PROVIDER_NOT_FOUND", "Provider not found")
		return
	}

	if !validateState(c) {
		fail(c, http.StatusUnauthorized, "INVALID_STATE", "Invalid state")
		return
	}
	h.clearFlowCookies(c)

	// the provider reports cancellations and consent failures here
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})
		c.Redirect(http.StatusFound, h.redirectTarget(errParam))
		return
	}

	code := c.Query("code")
	if code == "" {
		fail(c, http.StatusBadRequest, "MISSING_CODE", "Missing authorization code")
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		fail(c, http.StatusUnauthorized, "MISSING_PKCE_VERIFIER", "Missing PKCE verifier")
		return
	}

	ctx := c.Request.Context()

	identity, err := p.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		logger.Warn("oidc code exchange failed", map[string]any{
			"provider": providerName,
			"error":    logger.ErrorDetail(err),
		})
		fail(c, http.StatusUnauthorized, "OAUTH_FAILED", "Authentication failed")
		return
	}

	userID, err := h.resolver.Resolve(ctx, identity)
	if err != nil {
		logger.Error("identity resolution failed", map[string]any{
			"provider": providerName,
			"error":    logger.ErrorDetail(err),
		})
		fail(c, http.StatusInternalServerError, "FAILED_TO_RESOLVE_USER", "Failed to resolve user")
		return
	}

	issued, err := h.service.IssueFor(ctx, userID, clientip.Resolve(c.Request), c.Request.UserAgent())
	if err != nil {
		logger.Error("session issue failed", map[string]any{
			"error": logger.ErrorDetail(err),
		})
		fail(c, http.StatusInternalServerError, "FAILED_TO_CREATE_SESSION", "Failed to create session")
		return
	}

	session.SetCookie(c.Writer, issued.Signed, issued.Session.ExpiresAt, h.service.CookieOptions())

	logger.Info("social sign-in", map[string]any{
		"provider": providerName,
		"user_id":  userID,
	})

	c.Redirect(http.StatusFound, h.redirectTarget(""))
}

func (h *Handler) redirectTarget(errCode string) string {
	target := h.cfg.BaseURL
	if target == "" {
		target = "/"
	}
	if errCode == "" {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("error", errCode)
	u.RawQuery = q.Encode()
	return u.String()
}
