// Package prompt describes the caller-supplied options for an authentication
// prompt and their normalization rules.
package prompt

import "github.com/louisbranch/biomgate/internal/biometric"

// Options carries the caller configuration for one authentication request.
//
// AllowDeviceCredential is a legacy convenience flag. Normalize folds it into
// AuthenticatorsAllowed and clears it, so downstream logic only ever inspects
// the mask.
type Options struct {
	RequireConfirmation   bool
	AllowDeviceCredential bool
	AuthenticatorsAllowed biometric.AuthenticatorType
}

// Normalize folds the AllowDeviceCredential flag into the authenticators mask.
//
// A zero mask means the caller did not set one and defaults to biometric. The
// boolean, when set, adds the credential class on top of whatever mask the
// caller provided. The boolean is always cleared from the result.
func (o Options) Normalize() Options {
	if o.AuthenticatorsAllowed == 0 {
		o.AuthenticatorsAllowed = biometric.AuthenticatorBiometric
	}
	if o.AllowDeviceCredential {
		o.AuthenticatorsAllowed |= biometric.AuthenticatorCredential
		o.AllowDeviceCredential = false
	}
	return o
}

// CredentialAllowed reports whether the normalized options permit the device
// credential fallback.
func (o Options) CredentialAllowed() bool {
	return o.AuthenticatorsAllowed.Has(biometric.AuthenticatorCredential)
}

// BiometricAllowed reports whether the normalized options permit biometric
// modalities.
func (o Options) BiometricAllowed() bool {
	return o.AuthenticatorsAllowed.Has(biometric.AuthenticatorBiometric)
}

// ForceCredentialOnly returns a copy of the options restricted to the device
// credential class. Used when the biometric path is abandoned after a lockout.
func (o Options) ForceCredentialOnly() Options {
	o.AuthenticatorsAllowed = biometric.AuthenticatorCredential
	o.AllowDeviceCredential = false
	return o
}
