package internaldefs

import (
	"github.com/zeroing/jwtauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   jwtauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   jwtauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter fed by Engine.AuditDropped rather than the snapshot.
const (
	AuditDroppedName = "jwtauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: jwtauth.MetricTokenIssued, Name: "jwtauth_token_issued_total", Help: "Tokens signed."},
	{ID: jwtauth.MetricTokenIssueFailure, Name: "jwtauth_token_issue_failure_total", Help: "Token issue attempts that failed."},
	{ID: jwtauth.MetricValidateSuccess, Name: "jwtauth_validate_success_total", Help: "Tokens accepted by Authenticate."},
	{ID: jwtauth.MetricValidateMalformed, Name: "jwtauth_validate_malformed_total", Help: "Tokens rejected as malformed."},
	{ID: jwtauth.MetricValidateSignatureInvalid, Name: "jwtauth_validate_signature_invalid_total", Help: "Tokens rejected for a bad signature or algorithm."},
	{ID: jwtauth.MetricValidateExpired, Name: "jwtauth_validate_expired_total", Help: "Tokens rejected as expired."},
	{ID: jwtauth.MetricValidateClaimMissing, Name: "jwtauth_validate_claim_missing_total", Help: "Tokens rejected for a missing claim."},
	{ID: jwtauth.MetricValidateSubjectMismatch, Name: "jwtauth_validate_subject_mismatch_total", Help: "Tokens whose subject did not match the identity."},
	{ID: jwtauth.MetricValidateIssuedBeforeReset, Name: "jwtauth_validate_issued_before_reset_total", Help: "Tokens created before the last password reset."},
	{ID: jwtauth.MetricValidateUserNotFound, Name: "jwtauth_validate_user_not_found_total", Help: "Tokens naming an unknown identity."},
	{ID: jwtauth.MetricRefreshSuccess, Name: "jwtauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: jwtauth.MetricRefreshFailure, Name: "jwtauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: jwtauth.MetricLoginSuccess, Name: "jwtauth_login_success_total", Help: "Successful login attempts."},
	{ID: jwtauth.MetricLoginFailure, Name: "jwtauth_login_failure_total", Help: "Failed login attempts."},
	{ID: jwtauth.MetricPasswordUpgraded, Name: "jwtauth_password_upgraded_total", Help: "Credential hashes re-hashed with current parameters."},
	{ID: jwtauth.MetricPasswordReset, Name: "jwtauth_password_reset_total", Help: "Recorded password resets."},
	{ID: jwtauth.MetricStoreError, Name: "jwtauth_store_error_total", Help: "Identity store failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: jwtauth.MetricValidateLatency, Name: "jwtauth_validate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth engine bucket
// is the +Inf overflow.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is used in instrument names where labels are not available.
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

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last element is the
// sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
