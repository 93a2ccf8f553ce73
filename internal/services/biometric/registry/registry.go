// Package registry selects usable modality backends for an authentication
// request. It is a pure query layer: capability probes and settings gating,
// no side effects on the backends.
package registry

import (
	"context"
	"fmt"

	"github.com/louisbranch/biomgate/internal/biometric"
	"github.com/louisbranch/biomgate/internal/services/biometric/backend"
	"github.com/louisbranch/biomgate/internal/services/biometric/prompt"
)

// Settings exposes the per-user preferences the registry and orchestrator
// consult. Implemented by the settings store.
type Settings interface {
	FaceEnabledForApps(userID int32) bool
	FaceAlwaysRequireConfirmation(userID int32) bool
}

// PreflightError reports why no biometric modality is usable for a request.
// The precedence between codes is fixed: hardware not present wins over
// nothing enrolled, which wins over hardware unavailable.
type PreflightError struct {
	// Modality attributes the failure. Not-present and unavailable failures
	// report no modality; a missing enrollment names the affected sensor.
	Modality biometric.Modality
	Code     biometric.ErrorCode
}

// Error implements the error interface.
func (e *PreflightError) Error() string {
	return fmt.Sprintf("no usable biometric modality: code=%d modality=%s", e.Code, e.Modality)
}

// Registry holds the installed modality backends in presentation order.
type Registry struct {
	backends []backend.Backend
	settings Settings
}

// New creates a registry over the given backends. Order is preserved and
// determines selection priority.
func New(settings Settings, backends ...backend.Backend) *Registry {
	return &Registry{
		backends: backends,
		settings: settings,
	}
}

// Backends returns the registered backends in order.
func (r *Registry) Backends() []backend.Backend {
	return r.backends
}

// ByModality returns the backend serving the given modality, or nil.
func (r *Registry) ByModality(modality biometric.Modality) backend.Backend {
	for _, b := range r.backends {
		if b.Modality() == modality {
			return b
		}
	}
	return nil
}

// CandidatesFor returns the backends usable for the request, in registration
// order. When none is usable it returns a PreflightError carrying the
// highest-precedence failure observed.
func (r *Registry) CandidatesFor(ctx context.Context, caller biometric.Caller, opts prompt.Options) ([]backend.Backend, error) {
	if !opts.BiometricAllowed() || len(r.backends) == 0 {
		return nil, &PreflightError{Modality: biometric.ModalityNone, Code: biometric.ErrHWNotPresent}
	}

	var candidates []backend.Backend
	var notEnrolled biometric.Modality
	sawUnavailable := false

	for _, b := range r.backends {
		modality := b.Modality()

		if modality == biometric.ModalityFace && r.settings != nil && !r.settings.FaceEnabledForApps(caller.UserID) {
			sawUnavailable = true
			continue
		}

		enrolled, err := b.HasEnrolledTemplates(ctx, caller.UserID, caller.Package)
		if err != nil {
			sawUnavailable = true
			continue
		}
		if !enrolled {
			if notEnrolled == biometric.ModalityNone {
				notEnrolled = modality
			}
			continue
		}

		detected, err := b.IsHardwareDetected(ctx, caller.Package)
		if err != nil || !detected {
			sawUnavailable = true
			continue
		}

		candidates = append(candidates, b)
	}

	if len(candidates) > 0 {
		return candidates, nil
	}
	if notEnrolled != biometric.ModalityNone {
		return nil, &PreflightError{Modality: notEnrolled, Code: biometric.ErrNoBiometrics}
	}
	if sawUnavailable {
		return nil, &PreflightError{Modality: biometric.ModalityNone, Code: biometric.ErrHWUnavailable}
	}
	return nil, &PreflightError{Modality: biometric.ModalityNone, Code: biometric.ErrHWNotPresent}
}
