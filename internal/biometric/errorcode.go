package biometric

// ErrorCode is a hardware or user-facing authentication error code. The
// numeric values are part of the driver callback contract.
type ErrorCode int32

const (
	// ErrHWUnavailable indicates the sensor hardware cannot be reached.
	ErrHWUnavailable ErrorCode = 1
	// ErrUnableToProcess indicates the sensor could not process the capture.
	ErrUnableToProcess ErrorCode = 2
	// ErrTimeout indicates the sensing window elapsed without a decision.
	ErrTimeout ErrorCode = 3
	// ErrNoSpace indicates the sensor has no storage for the operation.
	ErrNoSpace ErrorCode = 4
	// ErrCanceled indicates the operation was canceled, by request or otherwise.
	ErrCanceled ErrorCode = 5
	// ErrLockout indicates too many rejected attempts locked the sensor.
	ErrLockout ErrorCode = 7
	// ErrVendor carries a vendor-specific error in the vendor code field.
	ErrVendor ErrorCode = 8
	// ErrLockoutPermanent indicates a lockout that only a stronger
	// authentication can clear.
	ErrLockoutPermanent ErrorCode = 9
	// ErrUserCanceled indicates the user dismissed the operation.
	ErrUserCanceled ErrorCode = 10
	// ErrNoBiometrics indicates hardware is present but nothing is enrolled.
	ErrNoBiometrics ErrorCode = 11
	// ErrHWNotPresent indicates no sensor hardware exists for the request.
	ErrHWNotPresent ErrorCode = 12
	// ErrNegativeButton indicates the user pressed the negative dialog button.
	ErrNegativeButton ErrorCode = 13

	// ErrPausedRejected is a presentation-surface status: the capture was
	// rejected and the session paused waiting for an explicit retry.
	ErrPausedRejected ErrorCode = 100
)

// Recoverable reports whether the error pauses the session instead of
// terminating it. Recoverable errors never reach the caller directly.
func (c ErrorCode) Recoverable() bool {
	return c == ErrTimeout
}

// Lockout reports whether the error is a lockout variant that can divert the
// session to the device-credential fallback.
func (c ErrorCode) Lockout() bool {
	return c == ErrLockout || c == ErrLockoutPermanent
}

// DismissReason explains why the presentation surface was dismissed.
type DismissReason int32

const (
	// DismissConfirmed means the user confirmed a successful capture.
	DismissConfirmed DismissReason = 1
	// DismissNegative means the user pressed the negative button.
	DismissNegative DismissReason = 2
	// DismissUserCancel means the user canceled the dialog.
	DismissUserCancel DismissReason = 3
	// DismissConfirmNotRequired means the dialog closed after a success that
	// needed no confirmation.
	DismissConfirmNotRequired DismissReason = 4
	// DismissError means the dialog closed after showing a terminal error.
	DismissError DismissReason = 5
	// DismissServerRequested means the service asked the surface to close.
	DismissServerRequested DismissReason = 6
)

// AcquiredGood is the acquisition code for a clean capture. It carries no
// help message and is not forwarded to the presentation surface.
const AcquiredGood int32 = 0
