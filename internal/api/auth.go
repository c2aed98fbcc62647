package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chataru/craftsite/internal/catalogue"
	"github.com/chataru/craftsite/internal/enquiry"
	adminsession "github.com/chataru/craftsite/internal/session"
)

const (
	cookieName  = "craftsite_admin"
	tokenKey    = "token"
	ctxTokenKey = "admin_token"
)

type handlers struct {
	auth         *adminsession.Authenticator
	catalogue    *catalogue.Service
	enquiries    *enquiry.Service
	secureCookie bool
	sessionTTL   time.Duration
}

type loginRequest struct {
	Password string `json:"password" form:"password"`
}

func (h *handlers) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return failFromErr(c, err, "bind login")
	}
	s, err := h.auth.Issue(c.Request().Context(), req.Password)
	if err != nil {
		if errors.Is(err, adminsession.ErrInvalidCredentials) {
			zap.L().Warn("admin login failed", zap.String("ip", c.RealIP()))
		}
		return failFromErr(c, err, "admin login")
	}

	// a re-login replaces the caller's previous session
	if prev := h.tokenFrom(c); prev != "" && prev != s.Token {
		if err := h.auth.Revoke(c.Request().Context(), prev); err != nil {
			zap.L().Warn("revoke previous admin session", zap.Error(err))
		}
	}

	sess, err := h.cookie(c)
	if err != nil {
		return failFromErr(c, err, "open admin cookie")
	}
	sess.Values[tokenKey] = s.Token
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return failFromErr(c, err, "save admin cookie")
	}

	zap.L().Info("admin logged in", zap.String("ip", c.RealIP()))
	extra := map[string]interface{}{"token": s.Token}
	if !s.ExpiresAt.IsZero() {
		extra["expires_at"] = s.ExpiresAt
	}
	return ok(c, extra)
}

// logout clears the cookie first, then revokes whatever token the caller
// held. A registry failure still leaves the cookie cleared.
func (h *handlers) logout(c echo.Context) error {
	token := h.tokenFrom(c)

	if sess, err := h.cookie(c); err == nil {
		delete(sess.Values, tokenKey)
		sess.Options.MaxAge = -1
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			zap.L().Warn("clear admin cookie", zap.Error(err))
		}
	}

	if err := h.auth.Revoke(c.Request().Context(), token); err != nil {
		return failFromErr(c, err, "admin logout")
	}
	return ok(c, nil)
}

func (h *handlers) sessionStatus(c echo.Context) error {
	s, err := h.auth.Validate(c.Request().Context(), h.tokenFrom(c))
	if err != nil {
		if errors.Is(err, adminsession.ErrUnauthorized) {
			return c.JSON(http.StatusOK, map[string]interface{}{"authenticated": false})
		}
		return failFromErr(c, err, "session status")
	}
	body := map[string]interface{}{"authenticated": true}
	if !s.ExpiresAt.IsZero() {
		body["expires_at"] = s.ExpiresAt
	}
	return c.JSON(http.StatusOK, body)
}

// requireSession rejects requests that do not carry a live admin session.
func (h *handlers) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := h.tokenFrom(c)
		if _, err := h.auth.Validate(c.Request().Context(), token); err != nil {
			return failFromErr(c, err, "validate session")
		}
		c.Set(ctxTokenKey, token)
		return next(c)
	}
}

// tokenFrom prefers a bearer token and falls back to the signed cookie.
func (h *handlers) tokenFrom(c echo.Context) string {
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		const prefix = "Bearer "
		if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
			return strings.TrimSpace(auth[len(prefix):])
		}
	}
	sess, err := h.cookie(c)
	if err != nil {
		return ""
	}
	token, _ := sess.Values[tokenKey].(string)
	return token
}

func (h *handlers) cookie(c echo.Context) (*sessions.Session, error) {
	sess, err := session.Get(cookieName, c)
	if sess == nil {
		return nil, err
	}
	// a cookie signed with an old key decodes with an error but still
	// yields a fresh session that can be overwritten
	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(h.sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	return sess, nil
}
