package revocation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/portunusbank/portunus/audit"
	"github.com/portunusbank/portunus/directory"
	"github.com/portunusbank/portunus/session"
)

// ServiceName identifies this service in health probe responses.
const ServiceName = "portunus-revocation"

// resolveTimeout bounds the resolve-and-destroy sequence so a hung store
// enumeration cannot hang the request forever.
const resolveTimeout = 15 * time.Second

// Subject identifier formats accepted in revocation requests.
const (
	FormatEmail  = "email"
	FormatIssSub = "iss_sub"
)

// subID is the subject-identifier object carried in the request body.
type subID struct {
	Format string `json:"format"`
	Email  string `json:"email"`
	Iss    string `json:"iss"`
	Sub    string `json:"sub"`
}

// subject returns the identifier to put on audit records for this sub_id.
func (s *subID) subject() string {
	if s.Format == FormatIssSub {
		return s.Sub
	}
	return s.Email
}

type revocationRequest struct {
	SubID *subID `json:"sub_id"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Handler serves the global token revocation endpoint and its health probe.
type Handler struct {
	validator *Validator
	directory *directory.Directory
	store     session.Store
	audience  string
	issuer    string
	recorder  audit.Recorder
	log       *zap.Logger
}

// NewHandler wires the revocation endpoint to its collaborators.
func NewHandler(v *Validator, dir *directory.Directory, store session.Store, audience, issuer string, recorder audit.Recorder, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if recorder == nil {
		recorder = audit.NewZapRecorder(log)
	}
	return &Handler{
		validator: v,
		directory: dir,
		store:     store,
		audience:  audience,
		issuer:    issuer,
		recorder:  recorder,
		log:       log,
	}
}

// RegisterRoutes mounts the revocation endpoint under the host's API prefix.
// HandleHealth is exported separately so the host can mount the probe
// without auth middleware.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/global-token-revocation", h.HandleRevocation)
}

// HandleRevocation processes a single revocation request:
// authenticate bearer, parse subject, resolve and destroy, respond.
func (h *Handler) HandleRevocation(c echo.Context) error {
	// AuthenticateBearer
	raw, ok := bearerToken(c.Request())
	if !ok {
		h.recorder.Record(&audit.Event{
			Type:      audit.EventRevocationDenied,
			Status:    "failure",
			Message:   "revocation request without bearer credentials",
			IPAddress: c.RealIP(),
			Risk:      audit.RiskMedium,
		})
		return c.JSON(http.StatusUnauthorized, errorResponse{
			Error:            "unauthenticated",
			ErrorDescription: "missing or malformed Authorization header",
		})
	}

	if _, err := h.validator.Validate(c.Request().Context(), raw, h.audience, h.issuer); err != nil {
		h.log.Warn("revocation token rejected", zap.Error(err))
		h.recorder.Record(&audit.Event{
			Type:      audit.EventRevocationDenied,
			Status:    "failure",
			Message:   "revocation token rejected",
			IPAddress: c.RealIP(),
			Risk:      audit.RiskMedium,
		})
		resp := errorResponse{Error: "invalid_token", ErrorDescription: "token validation failed"}
		if errors.Is(err, ErrExpired) {
			resp.Error = "expired_token"
			resp.ErrorDescription = "token is expired"
		}
		return c.JSON(http.StatusUnauthorized, resp)
	}

	// ParseSubject
	var body revocationRequest
	if err := c.Bind(&body); err != nil || body.SubID == nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:            "invalid_request",
			ErrorDescription: "request body must contain a sub_id object",
		})
	}

	sub := body.SubID
	switch sub.Format {
	case FormatEmail:
		if sub.Email == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{
				Error:            "invalid_request",
				ErrorDescription: `sub_id format "email" requires a non-empty email field`,
			})
		}
	case FormatIssSub:
		if sub.Iss == "" || sub.Sub == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{
				Error:            "invalid_request",
				ErrorDescription: `sub_id format "iss_sub" requires non-empty iss and sub fields`,
			})
		}
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:            "invalid_request",
			ErrorDescription: fmt.Sprintf("unrecognized sub_id format %q", sub.Format),
		})
	}

	// Resolve&Destroy
	ctx, cancel := context.WithTimeout(c.Request().Context(), resolveTimeout)
	defer cancel()

	count, err := h.resolveAndDestroy(ctx, sub)
	if err != nil {
		h.log.Error("revocation failed", zap.String("format", sub.Format), zap.Error(err))
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Error:            "unable_to_revoke",
			ErrorDescription: "unable to revoke sessions for the given subject",
		})
	}

	// Zero matches is still success: a 404 here would tell the caller
	// whether the account exists.
	h.log.Info("revocation processed",
		zap.String("format", sub.Format),
		zap.Int("sessions_destroyed", count),
	)
	h.recorder.Record(&audit.Event{
		Type:      audit.EventTokenRevocation,
		SubjectID: sub.subject(),
		Status:    "success",
		Message:   "global token revocation processed",
		IPAddress: c.RealIP(),
		Count:     count,
		Risk:      audit.RiskHigh,
	})
	return c.NoContent(http.StatusNoContent)
}

// resolveAndDestroy maps the subject identifier to sessions and destroys
// them, returning the number of destroy calls issued. An internal panic is
// captured and surfaced as an error so the endpoint can answer 422 instead
// of leaking a stack trace.
func (h *Handler) resolveAndDestroy(ctx context.Context, sub *subID) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during revocation: %v", r)
		}
	}()

	switch sub.Format {
	case FormatEmail:
		// Fast path: directory bookkeeping.
		count = h.directory.DestroyAllForIdentity(ctx, sub.Email)

		// Always follow with a full-store scan. The directory loses state
		// on restart and can race with registration, so the scan is the
		// backstop; re-destroying an id the directory already handled is
		// harmless because store destroys are idempotent.
		records, scanErr := h.store.All(ctx)
		if scanErr != nil {
			return count, fmt.Errorf("session scan: %w", scanErr)
		}
		for id, rec := range records {
			if rec == nil || !session.MatchesEmail(rec.Principal, sub.Email) {
				continue
			}
			if destroyErr := h.store.Destroy(ctx, id); destroyErr != nil {
				h.log.Error("fallback destroy failed",
					zap.String("session_id", id),
					zap.Error(destroyErr),
				)
			}
			count++
		}
		return count, nil

	case FormatIssSub:
		// The directory is keyed by email only, so this variant resolves
		// exclusively through the store scan.
		records, scanErr := h.store.All(ctx)
		if scanErr != nil {
			return 0, fmt.Errorf("session scan: %w", scanErr)
		}
		for id, rec := range records {
			if rec == nil || rec.Principal.Subject == "" || rec.Principal.Subject != sub.Sub {
				continue
			}
			if destroyErr := h.store.Destroy(ctx, id); destroyErr != nil {
				h.log.Error("fallback destroy failed",
					zap.String("session_id", id),
					zap.Error(destroyErr),
				)
			}
			count++
		}
		return count, nil
	}

	return 0, fmt.Errorf("unsupported format %q", sub.Format)
}

// HandleHealth answers the unauthenticated health probe.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":            "healthy",
		"service":           ServiceName,
		"supported_formats": []string{FormatEmail, FormatIssSub},
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
