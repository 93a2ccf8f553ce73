package biometric

import "strings"

// Modality identifies a biometric sensing modality. Values are bit flags so
// multi-modal sessions can be described by a single mask.
type Modality uint32

const (
	// ModalityNone indicates no specific modality.
	ModalityNone Modality = 0
	// ModalityFingerprint identifies fingerprint sensors.
	ModalityFingerprint Modality = 1 << 0
	// ModalityIris identifies iris sensors.
	ModalityIris Modality = 1 << 1
	// ModalityFace identifies face sensors.
	ModalityFace Modality = 1 << 2
)

// Has reports whether the mask includes the given modality.
func (m Modality) Has(other Modality) bool {
	return m&other != 0
}

// RequiresExplicitRetry reports whether the modality is a single-shot sensor
// that pauses after a rejection and needs the user to ask for another attempt.
// Fingerprint sensors keep sensing after a rejection; face and iris do not.
func (m Modality) RequiresExplicitRetry() bool {
	return m == ModalityFace || m == ModalityIris
}

// String returns a human-readable name for the modality mask.
func (m Modality) String() string {
	if m == ModalityNone {
		return "none"
	}
	var parts []string
	if m.Has(ModalityFingerprint) {
		parts = append(parts, "fingerprint")
	}
	if m.Has(ModalityIris) {
		parts = append(parts, "iris")
	}
	if m.Has(ModalityFace) {
		parts = append(parts, "face")
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// AuthenticatorType is the bitmask of authenticator classes a caller accepts.
type AuthenticatorType uint32

const (
	// AuthenticatorBiometric allows biometric modalities.
	AuthenticatorBiometric AuthenticatorType = 1 << 0
	// AuthenticatorCredential allows the device credential (PIN/pattern/password).
	AuthenticatorCredential AuthenticatorType = 1 << 1
)

// Has reports whether the mask includes the given authenticator class.
func (t AuthenticatorType) Has(other AuthenticatorType) bool {
	return t&other != 0
}
