// Package errors provides structured error handling for biomgate services.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request validation errors
	CodeRequestReceiverRequired Code = "REQUEST_RECEIVER_REQUIRED"
	CodeRequestPackageRequired  Code = "REQUEST_PACKAGE_REQUIRED"
	CodeRequestNoAuthenticators Code = "REQUEST_NO_AUTHENTICATORS"

	// Session errors
	CodeSessionNotFound        Code = "SESSION_NOT_FOUND"
	CodeSessionCookieUnknown   Code = "SESSION_COOKIE_UNKNOWN"
	CodeSessionInvalidDismiss  Code = "SESSION_INVALID_DISMISS_REASON"
	CodeSessionReceiverSpent   Code = "SESSION_RECEIVER_ALREADY_NOTIFIED"
	CodeSessionNotShowingCred  Code = "SESSION_NOT_SHOWING_CREDENTIAL"
	CodeSessionHATMissing      Code = "SESSION_HAT_MISSING"
	CodeSessionStateConflict   Code = "SESSION_STATE_CONFLICT"
	CodeSessionCookieExhausted Code = "SESSION_COOKIE_EXHAUSTED"

	// Credential errors
	CodeCredentialNotEnrolled Code = "CREDENTIAL_NOT_ENROLLED"
	CodeCredentialMismatch    Code = "CREDENTIAL_MISMATCH"
	CodeCredentialEmpty       Code = "CREDENTIAL_EMPTY"

	// Keystore errors
	CodeKeystoreTokenEmpty Code = "KEYSTORE_TOKEN_EMPTY"
	CodeKeystoreSealed     Code = "KEYSTORE_SEALED"

	// Storage errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)
