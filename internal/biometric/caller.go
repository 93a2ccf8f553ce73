package biometric

// Caller identifies the client that requested authentication. It is captured
// when the request arrives and never mutated afterwards.
type Caller struct {
	// Token is the opaque handle the caller supplied to correlate
	// cancellation with its own request.
	Token string
	// SessionID is the caller-scoped operation id, used by keystore-bound
	// tokens.
	SessionID int64
	// UserID is the platform user the authentication runs for.
	UserID int32
	// UID and PID identify the calling process.
	UID int32
	PID int32
	// Package is the calling package name, used for capability checks and
	// shown by the presentation surface.
	Package string
}
