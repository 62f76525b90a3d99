package internaldefs

import (
	"github.com/viridial/authcore"
)

// CounterDef names one Engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricSignInSuccess, Name: "authcore_signin_success_total", Help: "Successful sign-ins."},
	{ID: authcore.MetricSignInFailure, Name: "authcore_signin_failure_total", Help: "Sign-ins rejected with invalid credentials."},
	{ID: authcore.MetricSignInThrottled, Name: "authcore_signin_throttled_total", Help: "Sign-ins rejected by the attempt counter."},
	{ID: authcore.MetricSignInLocked, Name: "authcore_signin_locked_total", Help: "Sign-ins rejected by the durable account lock."},
	{ID: authcore.MetricSignInUnverified, Name: "authcore_signin_unverified_total", Help: "Sign-ins rejected for an unverified email."},
	{ID: authcore.MetricRotateSuccess, Name: "authcore_refresh_rotated_total", Help: "Successful refresh token rotations."},
	{ID: authcore.MetricRotateInvalid, Name: "authcore_refresh_invalid_total", Help: "Rejected refresh token rotations."},
	{ID: authcore.MetricRevoke, Name: "authcore_refresh_revoked_total", Help: "Refresh token revocations."},
	{ID: authcore.MetricSignUpSuccess, Name: "authcore_signup_success_total", Help: "Created accounts."},
	{ID: authcore.MetricSignUpDuplicate, Name: "authcore_signup_duplicate_total", Help: "Sign-ups rejected as duplicate."},
	{ID: authcore.MetricEmailTokenIssued, Name: "authcore_email_token_issued_total", Help: "Issued email-verification tokens."},
	{ID: authcore.MetricEmailVerified, Name: "authcore_email_verified_total", Help: "Successful email verifications."},
	{ID: authcore.MetricEmailVerifyFailed, Name: "authcore_email_verify_failed_total", Help: "Failed email verifications."},
	{ID: authcore.MetricThrottleFailOpen, Name: "authcore_throttle_fail_open_total", Help: "Throttle checks skipped because the counter store was unreachable."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Durable account locks set."},
	{ID: authcore.MetricSecretUpgraded, Name: "authcore_secret_upgraded_total", Help: "Password hashes rehashed on sign-in."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricSignInLatency, Name: "authcore_signin_latency_seconds", Help: "Sign-in latency histogram."},
}

// HistogramUpperBounds are the bucket bounds in seconds, without +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// that flatten buckets into gauges.
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

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
