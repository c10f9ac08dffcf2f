package authstate

import (
	"context"
	"time"

	"github.com/MrEthical07/authstate/internal"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventAccountLocked         = "account_locked"
	auditEventAPIKeySuccess         = "api_key_auth_success"
	auditEventAPIKeyFailure         = "api_key_auth_failure"
	auditEventAPIKeyIssued          = "api_key_issued"
	auditEventAPIKeyRevoked         = "api_key_revoked"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventCSRFFailure           = "csrf_failure"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// emitAudit queues one event. Usernames are sanitized and session ids are
// reduced to a fingerprint before they leave the engine.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	username string,
	sessionID string,
	reason FailureReason,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if sessionID != "" {
		sessionID = internal.Fingerprint(sessionID)
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Username:  internal.SanitizeForLog(username),
		SessionID: sessionID,
		IP:        internal.SanitizeForLog(ClientIPFromContext(ctx)),
		Success:   success,
		Reason:    string(reason),
		Metadata:  metadata,
	})
}

func (e *Engine) emitRateLimit(ctx context.Context, rule string, window time.Duration) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", "", ReasonNone, func() map[string]string {
		return map[string]string{
			"rule":   rule,
			"window": window.String(),
		}
	})
}
