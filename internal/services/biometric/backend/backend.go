// Package backend defines the contract between the session orchestrator and
// modality hardware drivers.
//
// A backend is asynchronous: PrepareForAuthentication returns before the
// sensor is ready, and every observable result arrives through the Events
// callbacks, correlated by cookie. A cancel request is only complete once the
// backend delivers the matching canceled error for its cookie.
package backend

import (
	"context"

	"github.com/louisbranch/biomgate/internal/biometric"
)

// Events is the callback surface a backend drives while it prepares and runs
// an authentication. Implemented by the session orchestrator.
type Events interface {
	// OnReadyForAuthentication reports that the prepared client for cookie is
	// ready to start sensing. Delivered exactly once per prepared cookie
	// unless an error retires it first.
	OnReadyForAuthentication(cookie uint32, requireConfirmation bool, userID int32)
	// OnAuthenticationSucceeded delivers a hardware authentication token for
	// the active session.
	OnAuthenticationSucceeded(requireConfirmation bool, hat []byte)
	// OnAuthenticationFailed reports a rejected capture. The sensor may keep
	// sensing depending on the modality.
	OnAuthenticationFailed()
	// OnAcquired reports capture quality feedback with an optional
	// human-readable help message.
	OnAcquired(code int32, message string)
	// OnError reports a hardware error for the given cookie and modality.
	OnError(cookie uint32, modality biometric.Modality, code biometric.ErrorCode, vendorCode int32)
}

// PrepareRequest asks a backend to set up a client for authentication.
type PrepareRequest struct {
	RequireConfirmation bool
	Caller              biometric.Caller
	// Cookie correlates every later callback with this prepared client. It is
	// unique for the life of the process and never zero.
	Cookie uint32
	Events Events
}

// CancelRequest asks a backend to abort an in-flight authentication. The
// backend must still deliver the canceled error for the affected cookie.
type CancelRequest struct {
	Caller biometric.Caller
	// FromClient distinguishes caller-initiated cancellation from
	// service-initiated preemption.
	FromClient bool
}

// Backend is a modality hardware driver. Implementations must be safe for
// concurrent use; the orchestrator treats all modalities polymorphically
// through this interface.
type Backend interface {
	// Modality returns the single modality flag this backend serves.
	Modality() biometric.Modality

	// IsHardwareDetected reports whether the sensor hardware is reachable.
	IsHardwareDetected(ctx context.Context, callingPackage string) (bool, error)
	// HasEnrolledTemplates reports whether the user has enrolled templates.
	HasEnrolledTemplates(ctx context.Context, userID int32, callingPackage string) (bool, error)

	// PrepareForAuthentication asynchronously sets up a client. The result is
	// observed only through req.Events, keyed by req.Cookie.
	PrepareForAuthentication(ctx context.Context, req PrepareRequest) error
	// StartPreparedClient begins active sensing for a prepared cookie.
	StartPreparedClient(ctx context.Context, cookie uint32) error
	// CancelAuthentication requests the hardware abort the operation.
	CancelAuthentication(ctx context.Context, req CancelRequest) error
}
