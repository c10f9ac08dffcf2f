package internaldefs

import (
	authstate "github.com/MrEthical07/authstate"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authstate.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   authstate.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authstate.MetricLoginSuccess, Name: "authstate_login_success_total", Help: "Successful password authentications."},
	{ID: authstate.MetricLoginFailure, Name: "authstate_login_failure_total", Help: "Failed password authentications."},
	{ID: authstate.MetricLoginLocked, Name: "authstate_login_locked_total", Help: "Authentications rejected because the identity was locked."},
	{ID: authstate.MetricLockoutTriggered, Name: "authstate_lockout_triggered_total", Help: "Failures that locked an identity."},
	{ID: authstate.MetricAPIKeySuccess, Name: "authstate_api_key_success_total", Help: "Successful API key authentications."},
	{ID: authstate.MetricAPIKeyFailure, Name: "authstate_api_key_failure_total", Help: "Failed API key authentications."},
	{ID: authstate.MetricAPIKeyIssued, Name: "authstate_api_key_issued_total", Help: "Issued API keys."},
	{ID: authstate.MetricAPIKeyRevoked, Name: "authstate_api_key_revoked_total", Help: "Revoked API keys."},
	{ID: authstate.MetricSessionCreated, Name: "authstate_session_created_total", Help: "Created sessions."},
	{ID: authstate.MetricSessionExpired, Name: "authstate_session_expired_total", Help: "Sessions removed after expiry."},
	{ID: authstate.MetricSessionEvicted, Name: "authstate_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: authstate.MetricSessionInvalidated, Name: "authstate_session_invalidated_total", Help: "Sessions invalidated by logout or password change."},
	{ID: authstate.MetricSessionRefreshed, Name: "authstate_session_refreshed_total", Help: "Session expiry extensions."},
	{ID: authstate.MetricLogout, Name: "authstate_logout_total", Help: "Single-session logout operations."},
	{ID: authstate.MetricLogoutAll, Name: "authstate_logout_all_total", Help: "Logout-all operations."},
	{ID: authstate.MetricCSRFFailure, Name: "authstate_csrf_failure_total", Help: "Rejected CSRF tokens."},
	{ID: authstate.MetricRateLimitHit, Name: "authstate_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: authstate.MetricPasswordChangeSuccess, Name: "authstate_password_change_success_total", Help: "Successful password changes."},
	{ID: authstate.MetricPasswordChangeFailure, Name: "authstate_password_change_failure_total", Help: "Rejected password changes."},
}

// HistogramDefs lists every latency histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authstate.MetricAuthenticateLatency, Name: "authstate_authenticate_latency_seconds", Help: "Password authentication latency."},
	{ID: authstate.MetricAPIKeyLatency, Name: "authstate_api_key_latency_seconds", Help: "API key authentication latency."},
}

// AuditDroppedName is the counter for events the audit dispatcher dropped.
const AuditDroppedName = "authstate_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// snapshot bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets and ignoring extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// ApproximateSum estimates the histogram sum from bucket upper bounds.
// Samples in the +Inf bucket count at the largest finite bound.
func ApproximateSum(raw [8]uint64) float64 {
	var sum float64
	for i, n := range raw {
		bound := HistogramUpperBounds[len(HistogramUpperBounds)-1]
		if i < len(HistogramUpperBounds) {
			bound = HistogramUpperBounds[i]
		}
		sum += float64(n) * bound
	}
	return sum
}
