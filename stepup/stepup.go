// Package stepup enforces a time-boxed second-factor freshness window before
// sensitive operations.
//
// A session carries an elevated-assurance marker stamped by the step-up
// re-authentication callback. The marker is valid for five minutes from
// acquisition; it never self-extends on use, and a stale marker is left in
// place rather than removed. When the marker is stale or absent, the gate
// remembers the requested destination on the session and redirects into the
// re-authentication flow instead of invoking the protected handler.
package stepup

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/portunusbank/portunus/session"
)

// FreshnessWindow is how long an elevated-assurance marker stays valid.
const FreshnessWindow = 5 * time.Minute

// ContextKey is where the auth middleware stores the current session record.
const ContextKey = "portunus.session"

// Fresh reports whether the record's marker is valid at the given instant.
// The comparison is strict: a marker is stale at exactly FreshnessWindow.
// Both timestamps come from the same process clock, so no skew allowance is
// applied here.
func Fresh(rec *session.Record, now time.Time) bool {
	if rec == nil || !rec.MFAVerified {
		return false
	}
	return now.Sub(rec.MFAVerifiedAt) < FreshnessWindow
}

// Stamp establishes freshness on the record. This is the only way freshness
// is established; callers invoke it from the re-authentication completion
// handler after the identity provider reports success.
func Stamp(rec *session.Record, now time.Time) {
	rec.MFAVerified = true
	rec.MFAVerifiedAt = now
}

// Gate guards sensitive routes behind the freshness window.
type Gate struct {
	store      session.Store
	reauthPath string
	log        *zap.Logger
	now        func() time.Time
}

// NewGate creates a gate that redirects stale sessions to reauthPath.
func NewGate(store session.Store, reauthPath string, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		store:      store,
		reauthPath: reauthPath,
		log:        log,
		now:        time.Now,
	}
}

// SetClock overrides the gate's clock. Tests use this to probe the window
// boundary without sleeping.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// Middleware returns an echo middleware enforcing the freshness window. It
// expects the auth middleware to have stored the session record in the echo
// context under ContextKey.
func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rec, _ := c.Get(ContextKey).(*session.Record)
			if Fresh(rec, g.now()) {
				return next(c)
			}

			if rec != nil {
				rec.ReturnTo = c.Request().URL.RequestURI()
				if err := g.store.Save(c.Request().Context(), rec); err != nil {
					g.log.Error("failed to persist return destination",
						zap.String("session_id", rec.ID),
						zap.Error(err),
					)
				}
				g.log.Info("step-up required",
					zap.String("session_id", rec.ID),
					zap.String("return_to", rec.ReturnTo),
				)
			}

			return c.Redirect(http.StatusFound, g.reauthPath)
		}
	}
}
