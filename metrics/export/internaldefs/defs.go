package internaldefs

import (
	authgate "github.com/hatchpanel/authgate"
)

// CounterDef pairs a [authgate.MetricID] with its exported metric name.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef pairs a histogram [authgate.MetricID] with its exported name.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authgate.MetricGateAuthenticated, Name: "authgate_gate_authenticated_total", Help: "Requests resolved to an authenticated identity."},
	{ID: authgate.MetricGateNoCredential, Name: "authgate_gate_no_credential_total", Help: "Requests carrying no credential cookie."},
	{ID: authgate.MetricGateInvalidCredential, Name: "authgate_gate_invalid_credential_total", Help: "Requests whose credential failed signature or shape checks."},
	{ID: authgate.MetricGateExpiredSession, Name: "authgate_gate_expired_session_total", Help: "Requests whose embedded session was expired or unknown."},
	{ID: authgate.MetricGateTwoFactorPending, Name: "authgate_gate_two_factor_pending_total", Help: "Requests rejected with the two-factor challenge still pending."},
	{ID: authgate.MetricGatePrivilegeRejected, Name: "authgate_gate_privilege_rejected_total", Help: "Requests rejected by the elevated privilege predicate."},
	{ID: authgate.MetricGateStoreFailure, Name: "authgate_gate_store_failure_total", Help: "Gate passes aborted by a backing store failure."},
	{ID: authgate.MetricCacheHit, Name: "authgate_identity_cache_hit_total", Help: "Identity cache hits."},
	{ID: authgate.MetricCacheMiss, Name: "authgate_identity_cache_miss_total", Help: "Identity cache misses falling back to the user store."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Sessions minted by login and OAuth flows."},
	{ID: authgate.MetricSessionQuotaRejected, Name: "authgate_session_quota_rejected_total", Help: "Session creations rejected by the per-user quota."},
	{ID: authgate.MetricSessionRevoked, Name: "authgate_session_revoked_total", Help: "Sessions removed by logout or revocation."},
	{ID: authgate.MetricSessionSwept, Name: "authgate_session_swept_total", Help: "Expired sessions removed by the sweep."},
	{ID: authgate.MetricSecondFactorSuccess, Name: "authgate_second_factor_success_total", Help: "Second-factor challenges consumed successfully."},
	{ID: authgate.MetricSecondFactorFailure, Name: "authgate_second_factor_failure_total", Help: "Second-factor submissions that failed to verify."},
	{ID: authgate.MetricSecondFactorRateLimited, Name: "authgate_second_factor_rate_limited_total", Help: "Second-factor submissions rejected by the attempt limiter."},
	{ID: authgate.MetricOAuthStateIssued, Name: "authgate_oauth_state_issued_total", Help: "OAuth state handshakes started."},
	{ID: authgate.MetricOAuthStateConsumed, Name: "authgate_oauth_state_consumed_total", Help: "OAuth state handshakes completed successfully."},
	{ID: authgate.MetricOAuthStateMismatch, Name: "authgate_oauth_state_mismatch_total", Help: "OAuth callbacks rejected for missing or mismatched state."},
	{ID: authgate.MetricLinkRejected, Name: "authgate_oauth_link_rejected_total", Help: "Provider link attempts rejected by the linking invariant."},
}

var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricAuthenticateLatency, Name: "authgate_authenticate_latency_seconds", Help: "Gate pass latency histogram."},
}

// HistogramBounds are the le labels for the Prometheus exposition format.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bound spellings usable in instrument names.
var HistogramBoundSuffix = []string{
	"5ms",
	"10ms",
	"25ms",
	"50ms",
	"100ms",
	"250ms",
	"500ms",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets folds per-bucket counts into cumulative le-style buckets.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
