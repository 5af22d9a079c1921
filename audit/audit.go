// Package audit records security-relevant events: session lifecycle,
// step-up challenges, and global token revocations.
package audit

import (
	"time"

	"go.uber.org/zap"
)

// RiskLevel categorizes the severity of audit events.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Event represents a structured security event record.
type Event struct {
	Type      string    `json:"type"`
	ActorID   string    `json:"actor_id,omitempty"`   // identity performing the action
	SubjectID string    `json:"subject_id,omitempty"` // affected identity
	Status    string    `json:"status"`               // "success", "failure"
	Message   string    `json:"message,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Count     int       `json:"count,omitempty"` // sessions affected, for bulk events
	Risk      RiskLevel `json:"risk,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event types emitted by this application.
const (
	EventLogout           = "auth.logout"
	EventSessionCreated   = "auth.session.created"
	EventSessionRevoked   = "auth.session.revoked"
	EventStepUpChallenge  = "auth.stepup.challenge"
	EventStepUpSuccess    = "auth.stepup.success"
	EventTokenRevocation  = "security.token.revocation"
	EventRevocationDenied = "security.token.revocation_denied"
)

// Recorder writes audit events. The default implementation logs through zap;
// deployments that need durable audit trails can wrap it.
type Recorder interface {
	Record(event *Event)
}

// ZapRecorder emits audit events as structured log entries.
type ZapRecorder struct {
	log *zap.Logger
}

// NewZapRecorder creates a Recorder over the given logger.
func NewZapRecorder(log *zap.Logger) *ZapRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapRecorder{log: log}
}

func (r *ZapRecorder) Record(event *Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Risk == "" {
		event.Risk = RiskLow
	}

	fields := []zap.Field{
		zap.String("audit_type", event.Type),
		zap.String("status", event.Status),
		zap.String("risk", string(event.Risk)),
		zap.Time("created_at", event.CreatedAt),
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.SubjectID != "" {
		fields = append(fields, zap.String("subject_id", event.SubjectID))
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session_id", event.SessionID))
	}
	if event.IPAddress != "" {
		fields = append(fields, zap.String("ip_address", event.IPAddress))
	}
	if event.Count > 0 {
		fields = append(fields, zap.Int("count", event.Count))
	}

	r.log.Info(event.Message, fields...)
}
