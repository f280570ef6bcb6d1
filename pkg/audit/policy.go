// Package audit records policy decisions and scope violations as structured
// events so refused questions can be reviewed later.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/logging"
)

// EventType categorizes audit events for filtering and alerting.
type EventType string

const (
	// EventPolicyBlock is logged when a question asks for evasion guidance.
	EventPolicyBlock EventType = "policy_block"
	// EventUnsafeInput is logged when libinjection flags a plan value.
	EventUnsafeInput EventType = "unsafe_input"
	// EventScopeViolation is logged when a plan reaches the data agent unbound.
	EventScopeViolation EventType = "scope_violation"
)

// Event is one auditable decision.
type Event struct {
	Timestamp        time.Time `json:"timestamp"`
	EventType        EventType `json:"event_type"`
	DatasetVersionID uuid.UUID `json:"dataset_version_id,omitempty"`
	Query            string    `json:"query"`
	ClientIP         string    `json:"client_ip,omitempty"`
	Reason           string    `json:"reason"`
	Details          any       `json:"details,omitempty"`
	Severity         string    `json:"severity"` // info, warning, critical
}

type clientIPKey struct{}

// WithClientIP stores the caller address for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address stored by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// PolicyAuditor writes audit events to a dedicated "policy_audit" logger.
type PolicyAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewPolicyAuditor creates an auditor. A nil logger disables output.
func NewPolicyAuditor(logger *zap.Logger) *PolicyAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyAuditor{logger: logger.Named("policy_audit"), now: time.Now}
}

// LogBlock records a refused question.
func (a *PolicyAuditor) LogBlock(ctx context.Context, query, reason string) {
	a.log(ctx, Event{
		EventType: EventPolicyBlock,
		Query:     logging.SanitizeQuery(query),
		Reason:    reason,
		Severity:  "warning",
	})
}

// LogUnsafeInput records a plan value that looked like SQL injection.
func (a *PolicyAuditor) LogUnsafeInput(ctx context.Context, query, field, fingerprint string) {
	a.log(ctx, Event{
		EventType: EventUnsafeInput,
		Query:     logging.SanitizeQuery(query),
		Reason:    "injection pattern in " + field,
		Details:   map[string]string{"field": field, "fingerprint": fingerprint},
		Severity:  "critical",
	})
}

// LogScopeViolation records a data request that carried no dataset version.
func (a *PolicyAuditor) LogScopeViolation(ctx context.Context, query string, filterType string) {
	a.log(ctx, Event{
		EventType: EventScopeViolation,
		Query:     logging.SanitizeQuery(query),
		Reason:    "unbound " + filterType + " request",
		Severity:  "warning",
	})
}

func (a *PolicyAuditor) log(ctx context.Context, event Event) {
	event.Timestamp = a.now().UTC()
	event.ClientIP = ClientIPFromContext(ctx)

	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("reason", event.Reason),
		zap.String("client_ip", event.ClientIP),
		zap.String("severity", event.Severity),
	}
	if event.Severity == "critical" {
		a.logger.Error("Policy audit event", fields...)
		return
	}
	a.logger.Warn("Policy audit event", fields...)
}
