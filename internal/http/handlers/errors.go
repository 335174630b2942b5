// Package handlers implements the admin and ingest endpoints of the rule
// engine on top of Gin.
//
// This file centralizes the machine-readable error codes returned in
// ErrorResponse.Code.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	ErrCodeLimitReached = "limit_reached"
	ErrCodeClaimFailed  = "claim_failed"
	ErrCodeScanDisabled = "scan_disabled"
	ErrCodeNoMatch      = "no_match"
)
