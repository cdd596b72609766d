package config_loader

import "time"

// EnvPrefix is the prefix for all environment variables that override connection config
const EnvPrefix = "DNAC"

// Connection field names, as accepted in task files (bare or with the dnac_ prefix)
const (
	FieldHost              = "host"
	FieldPort              = "port"
	FieldUsername          = "username"
	FieldPassword          = "password"
	FieldToken             = "token"
	FieldVerify            = "verify"
	FieldCAFile            = "caFile"
	FieldVersion           = "version"
	FieldDebug             = "debug"
	FieldTimeout           = "timeout"
	FieldRetryAttempts     = "retryAttempts"
	FieldRetryInitialDelay = "retryInitialDelay"
	FieldRetryMaxDelay     = "retryMaxDelay"
	FieldRateLimit         = "rateLimit"
	FieldIdempotencyHeader = "idempotencyHeader"
)

// Runtime field names
const (
	FieldState            = "state"
	FieldCheckMode        = "check_mode"
	FieldDiff             = "diff"
	FieldPollInitialDelay = "poll_initial_delay"
	FieldPollMaxDelay     = "poll_max_delay"
	FieldPollTimeout      = "poll_timeout"
)

// Connection defaults
const (
	DefaultPort              = 443
	DefaultVersion           = "2.3.7.6"
	DefaultTimeout           = 30 * time.Second
	DefaultRetryAttempts     = 3
	DefaultRetryInitialDelay = time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
	DefaultIdempotencyHeader = "X-Idempotency-Key"
)
