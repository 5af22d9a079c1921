// Package api exposes the demo bank's HTTP surface: login and logout, the
// step-up protected transfer endpoint, profile, and preferences. The
// security-relevant routes (global token revocation, health) live in the
// revocation package; this handler wires the session-facing side.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/portunusbank/portunus/audit"
	"github.com/portunusbank/portunus/directory"
	"github.com/portunusbank/portunus/flow"
	"github.com/portunusbank/portunus/preferences"
	"github.com/portunusbank/portunus/session"
	"github.com/portunusbank/portunus/stepup"
)

const (
	// SessionCookieName carries the opaque session id.
	SessionCookieName = "portunus_session"

	stateCookieName = "portunus_state"
	stepUpStateTag  = "stepup:"
)

// ProfileService reads user profile data from the identity provider's
// management API. Treated as an external collaborator; the default handler
// falls back to session claims when none is configured.
type ProfileService interface {
	Fetch(ctx context.Context, subject string) (map[string]any, error)
}

type Handler struct {
	oidcManager *flow.OIDCManager
	store       session.Store
	directory   *directory.Directory
	gate        *stepup.Gate
	prefs       *preferences.Repository
	profiles    ProfileService
	recorder    audit.Recorder
	log         *zap.Logger
}

func NewHandler(om *flow.OIDCManager, store session.Store, dir *directory.Directory, gate *stepup.Gate, prefs *preferences.Repository, recorder audit.Recorder, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if recorder == nil {
		recorder = audit.NewZapRecorder(log)
	}
	return &Handler{
		oidcManager: om,
		store:       store,
		directory:   dir,
		gate:        gate,
		prefs:       prefs,
		recorder:    recorder,
		log:         log,
	}
}

// SetProfileService plugs in the management API client.
func (h *Handler) SetProfileService(p ProfileService) {
	h.profiles = p
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/login", h.HandleLogin)
	e.GET("/stepup", h.HandleStepUp)
	e.GET("/authorization-code/callback", h.HandleCallback)
	e.POST("/logout", h.HandleLogout)

	g := e.Group("/api/v1")
	g.Use(h.AuthMiddleware)
	g.GET("/profile", h.HandleProfile)
	g.GET("/preferences", h.HandleGetPreferences)
	g.PUT("/preferences", h.HandlePutPreferences)

	// Wire transfers are the sensitive operation: a valid session is not
	// enough, the step-up marker must also be fresh.
	g.POST("/transfers", h.HandleTransfer, h.gate.Middleware())
}

func (h *Handler) HandleLogin(c echo.Context) error {
	if err := h.requireOIDC(c); err != nil {
		return err
	}
	state := uuid.NewString()
	setStateCookie(c, state)
	return c.Redirect(http.StatusFound, h.oidcManager.AuthURL(state))
}

// requireOIDC answers 503 on the provider-backed routes when the deployment
// has no identity provider configured, instead of letting a nil manager
// panic into the recover middleware.
func (h *Handler) requireOIDC(c echo.Context) error {
	if h.oidcManager != nil {
		return nil
	}
	return h.Error(c, http.StatusServiceUnavailable, "identity provider not configured", nil)
}

// HandleStepUp starts the re-authentication flow the gate redirects into.
// It requires an existing session; the provider challenge happens upstream.
func (h *Handler) HandleStepUp(c echo.Context) error {
	if err := h.requireOIDC(c); err != nil {
		return err
	}
	rec, err := h.sessionFromCookie(c)
	if err != nil {
		return c.Redirect(http.StatusFound, "/login")
	}

	state := stepUpStateTag + uuid.NewString()
	setStateCookie(c, state)

	h.recorder.Record(&audit.Event{
		Type:      audit.EventStepUpChallenge,
		ActorID:   session.PrimaryEmail(rec.Principal),
		SessionID: rec.ID,
		Status:    "success",
		Message:   "step-up challenge issued",
	})
	return c.Redirect(http.StatusFound, h.oidcManager.StepUpAuthURL(state))
}

func (h *Handler) HandleCallback(c echo.Context) error {
	if err := h.requireOIDC(c); err != nil {
		return err
	}
	state := c.QueryParam("state")
	cookie, err := c.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != state {
		return h.Error(c, http.StatusBadRequest, "state mismatch", err)
	}
	clearCookie(c, stateCookieName)

	code := c.QueryParam("code")
	principal, err := h.oidcManager.Authenticate(c.Request().Context(), code)
	if err != nil {
		return h.Error(c, http.StatusUnauthorized, "authentication failed", err)
	}

	if strings.HasPrefix(state, stepUpStateTag) {
		return h.completeStepUp(c, principal)
	}
	return h.completeLogin(c, principal)
}

// completeLogin establishes the server-side session and registers it with
// the directory so revocation by email has its fast path.
func (h *Handler) completeLogin(c echo.Context, principal session.Principal) error {
	rec := session.NewRecord(uuid.NewString())
	rec.Principal = principal

	if err := h.store.Save(c.Request().Context(), rec); err != nil {
		return h.Error(c, http.StatusInternalServerError, "failed to persist session", err)
	}

	email := session.PrimaryEmail(principal)
	h.directory.Register(email, rec.ID)

	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    rec.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  rec.ExpiresAt,
	})

	h.recorder.Record(&audit.Event{
		Type:      audit.EventSessionCreated,
		ActorID:   email,
		SessionID: rec.ID,
		IPAddress: c.RealIP(),
		Status:    "success",
		Message:   "login completed",
	})
	return c.Redirect(http.StatusFound, "/")
}

// completeStepUp stamps the elevated-assurance marker on the existing
// session and resumes the interrupted destination.
func (h *Handler) completeStepUp(c echo.Context, principal session.Principal) error {
	rec, err := h.sessionFromCookie(c)
	if err != nil {
		return c.Redirect(http.StatusFound, "/login")
	}

	if principal.Subject != "" && rec.Principal.Subject != "" && principal.Subject != rec.Principal.Subject {
		return h.Error(c, http.StatusUnauthorized, "step-up principal mismatch", nil)
	}

	stepup.Stamp(rec, time.Now())
	returnTo := rec.ReturnTo
	rec.ReturnTo = ""
	if err := h.store.Save(c.Request().Context(), rec); err != nil {
		return h.Error(c, http.StatusInternalServerError, "failed to persist session", err)
	}

	h.recorder.Record(&audit.Event{
		Type:      audit.EventStepUpSuccess,
		ActorID:   session.PrimaryEmail(rec.Principal),
		SessionID: rec.ID,
		Status:    "success",
		Message:   "step-up completed",
	})

	if returnTo == "" {
		returnTo = "/"
	}
	return c.Redirect(http.StatusFound, returnTo)
}

func (h *Handler) HandleLogout(c echo.Context) error {
	rec, err := h.sessionFromCookie(c)
	if err == nil {
		h.directory.Unregister(session.PrimaryEmail(rec.Principal), rec.ID)
		if err := h.store.Destroy(c.Request().Context(), rec.ID); err != nil {
			h.log.Error("failed to destroy session on logout",
				zap.String("session_id", rec.ID), zap.Error(err))
		}
		h.recorder.Record(&audit.Event{
			Type:      audit.EventLogout,
			ActorID:   session.PrimaryEmail(rec.Principal),
			SessionID: rec.ID,
			Status:    "success",
			Message:   "logout",
		})
	}
	clearCookie(c, SessionCookieName)
	return c.NoContent(http.StatusNoContent)
}

// AuthMiddleware resolves the session cookie and stores the record in the
// request context for downstream handlers and the step-up gate.
func (h *Handler) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rec, err := h.sessionFromCookie(c)
		if err != nil {
			return h.Error(c, http.StatusUnauthorized, "authentication required", err)
		}
		c.Set(stepup.ContextKey, rec)
		return next(c)
	}
}

func (h *Handler) HandleProfile(c echo.Context) error {
	rec := c.Get(stepup.ContextKey).(*session.Record)

	if h.profiles != nil {
		profile, err := h.profiles.Fetch(c.Request().Context(), rec.Principal.Subject)
		if err == nil {
			return c.JSON(http.StatusOK, profile)
		}
		h.log.Warn("profile fetch failed, falling back to session claims", zap.Error(err))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"sub":   rec.Principal.Subject,
		"email": session.PrimaryEmail(rec.Principal),
		"name":  rec.Principal.Name,
	})
}

func (h *Handler) HandleTransfer(c echo.Context) error {
	var body struct {
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
		ToAccount string `json:"to_account"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "invalid request body", err)
	}
	if body.Amount == "" || body.ToAccount == "" {
		return h.Error(c, http.StatusBadRequest, "amount and to_account are required", nil)
	}

	// Business validation of the transfer itself is out of scope for the
	// demo; acceptance is the interesting part because it sits behind the
	// step-up gate.
	return c.JSON(http.StatusCreated, map[string]any{
		"reference": uuid.NewString(),
		"status":    "accepted",
	})
}

func (h *Handler) HandleGetPreferences(c echo.Context) error {
	rec := c.Get(stepup.ContextKey).(*session.Record)
	prefs, err := h.prefs.GetAll(rec.Principal.Subject)
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "failed to load preferences", err)
	}
	return c.JSON(http.StatusOK, prefs)
}

func (h *Handler) HandlePutPreferences(c echo.Context) error {
	rec := c.Get(stepup.ContextKey).(*session.Record)

	var body map[string]string
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "invalid request body", err)
	}
	for key, value := range body {
		if err := h.prefs.Set(rec.Principal.Subject, key, value); err != nil {
			return h.Error(c, http.StatusInternalServerError, "failed to save preferences", err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) sessionFromCookie(c echo.Context) (*session.Record, error) {
	cookie, err := c.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, session.ErrNotFound
	}

	rec, err := h.store.Get(c.Request().Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		return nil, session.ErrNotFound
	}
	return rec, nil
}

func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		h.log.Error(message, zap.Error(err))
	}
	return c.JSON(code, map[string]string{"error": message})
}

func setStateCookie(c echo.Context, state string) {
	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
}

func clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
