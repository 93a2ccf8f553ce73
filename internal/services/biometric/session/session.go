// Package session holds the data model for one in-flight authentication
// attempt: its state, cookie bookkeeping, and the single-use caller receiver.
//
// Transition logic lives in the orchestrator; this package enforces the data
// invariants (all-or-nothing readiness, at-most-once caller notification).
package session

import (
	"time"

	"github.com/louisbranch/biomgate/internal/biometric"
	apperrors "github.com/louisbranch/biomgate/internal/platform/errors"
	"github.com/louisbranch/biomgate/internal/services/biometric/prompt"
)

// State is the lifecycle state of an authentication session.
type State int

const (
	// StateIdle is the zero value; a live session never carries it.
	StateIdle State = iota
	// StateAuthCalled means backends were asked to prepare and the session
	// waits for readiness callbacks.
	StateAuthCalled
	// StateAuthStarted means hardware is actively sensing.
	StateAuthStarted
	// StateAuthPaused means a recoverable error stopped sensing and the
	// session waits for an explicit retry.
	StateAuthPaused
	// StatePendingConfirm means hardware succeeded and the user must confirm
	// before the token is released.
	StatePendingConfirm
	// StateAuthenticatedPendingSurface means hardware succeeded without
	// confirmation and the session waits for the surface dismissal.
	StateAuthenticatedPendingSurface
	// StateErrorPendingSurface means a terminal error is on screen and the
	// caller is notified only after the surface acknowledges it.
	StateErrorPendingSurface
	// StateShowingDeviceCredential means the biometric path was abandoned in
	// favor of the device-credential fallback.
	StateShowingDeviceCredential
)

// String returns a short name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthCalled:
		return "auth_called"
	case StateAuthStarted:
		return "auth_started"
	case StateAuthPaused:
		return "auth_paused"
	case StatePendingConfirm:
		return "pending_confirm"
	case StateAuthenticatedPendingSurface:
		return "authenticated_pending_surface"
	case StateErrorPendingSurface:
		return "error_pending_surface"
	case StateShowingDeviceCredential:
		return "showing_device_credential"
	}
	return "unknown"
}

var (
	// ErrReceiverRequired indicates a request without a caller receiver.
	ErrReceiverRequired = apperrors.New(apperrors.CodeRequestReceiverRequired, "caller receiver is required")
	// ErrPackageRequired indicates a request without a calling package name.
	ErrPackageRequired = apperrors.New(apperrors.CodeRequestPackageRequired, "calling package is required")
)

// Receiver is the single-use callback handle that notifies the original
// caller. Exactly one of the three methods fires per session.
type Receiver interface {
	OnAuthenticationSucceeded()
	OnAuthenticationFailed()
	OnError(modality biometric.Modality, code biometric.ErrorCode, vendorCode int32)
}

// PendingError is a terminal hardware error held back until the presentation
// surface acknowledges its dismissal.
type PendingError struct {
	Modality   biometric.Modality
	Code       biometric.ErrorCode
	VendorCode int32
}

// Session is one authentication attempt. Owned exclusively by the
// orchestrator while active; never shared across goroutines without it.
type Session struct {
	ID      string
	Caller  biometric.Caller
	Options prompt.Options
	// RequireConfirmation is the effective value after per-user settings are
	// applied on top of the caller options.
	RequireConfirmation bool
	State               State

	// ModalitiesWaiting maps modalities that were asked to prepare but have
	// not signaled readiness to their cookies. ModalitiesMatched holds the
	// ones that are ready. Matched is only acted upon once Waiting drains.
	ModalitiesWaiting map[biometric.Modality]uint32
	ModalitiesMatched map[biometric.Modality]uint32

	// PendingHAT is the hardware authentication token held back until the
	// finalizing success transition.
	PendingHAT []byte
	// PendingError is set only in StateErrorPendingSurface.
	PendingError *PendingError

	CreatedAt time.Time

	receiver Receiver
	notified bool
}

// Input describes what is needed to create a session.
type Input struct {
	ID                  string
	Caller              biometric.Caller
	Options             prompt.Options
	RequireConfirmation bool
	Receiver            Receiver
	Now                 time.Time
}

// New validates the input and creates a session in StateAuthCalled with empty
// cookie maps.
func New(input Input) (*Session, error) {
	if input.Receiver == nil {
		return nil, ErrReceiverRequired
	}
	if input.Caller.Package == "" {
		return nil, ErrPackageRequired
	}

	return &Session{
		ID:                  input.ID,
		Caller:              input.Caller,
		Options:             input.Options,
		RequireConfirmation: input.RequireConfirmation,
		State:               StateAuthCalled,
		ModalitiesWaiting:   make(map[biometric.Modality]uint32),
		ModalitiesMatched:   make(map[biometric.Modality]uint32),
		CreatedAt:           input.Now.UTC(),
		receiver:            input.Receiver,
	}, nil
}

// AddWaiting registers a prepared modality and its cookie.
func (s *Session) AddWaiting(modality biometric.Modality, cookie uint32) {
	s.ModalitiesWaiting[modality] = cookie
}

// MarkReady moves the modality owning cookie from waiting to matched. It
// reports whether the cookie belonged to this session and whether every
// prepared modality is now ready.
func (s *Session) MarkReady(cookie uint32) (owned, allReady bool) {
	for modality, c := range s.ModalitiesWaiting {
		if c != cookie {
			continue
		}
		delete(s.ModalitiesWaiting, modality)
		s.ModalitiesMatched[modality] = cookie
		return true, len(s.ModalitiesWaiting) == 0
	}
	return false, false
}

// OwnsCookie reports whether the cookie belongs to this session, waiting or
// matched.
func (s *Session) OwnsCookie(cookie uint32) bool {
	for _, c := range s.ModalitiesWaiting {
		if c == cookie {
			return true
		}
	}
	for _, c := range s.ModalitiesMatched {
		if c == cookie {
			return true
		}
	}
	return false
}

// WaitingCookie reports whether the cookie is still in the waiting set.
func (s *Session) WaitingCookie(cookie uint32) bool {
	for _, c := range s.ModalitiesWaiting {
		if c == cookie {
			return true
		}
	}
	return false
}

// ModalityMask aggregates the modalities this session is using: the matched
// set once ready, the waiting set before that.
func (s *Session) ModalityMask() biometric.Modality {
	mask := biometric.ModalityNone
	for modality := range s.ModalitiesMatched {
		mask |= modality
	}
	if mask == biometric.ModalityNone {
		for modality := range s.ModalitiesWaiting {
			mask |= modality
		}
	}
	return mask
}

// Receiver returns the caller receiver, for retry sessions that reuse it.
func (s *Session) Receiver() Receiver {
	return s.receiver
}

// Notified reports whether the caller receiver already fired.
func (s *Session) Notified() bool {
	return s.notified
}

// NotifySucceeded fires the success callback at most once.
func (s *Session) NotifySucceeded() {
	if s.notified {
		return
	}
	s.notified = true
	s.receiver.OnAuthenticationSucceeded()
}

// NotifyFailed reports a rejected capture to the caller. Unlike the terminal
// callbacks it may fire multiple times while the session keeps sensing.
func (s *Session) NotifyFailed() {
	if s.notified {
		return
	}
	s.receiver.OnAuthenticationFailed()
}

// NotifyError fires the error callback at most once.
func (s *Session) NotifyError(modality biometric.Modality, code biometric.ErrorCode, vendorCode int32) {
	if s.notified {
		return
	}
	s.notified = true
	s.receiver.OnError(modality, code, vendorCode)
}
