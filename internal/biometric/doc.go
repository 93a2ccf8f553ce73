// Package biometric defines the shared vocabulary for biometric
// authentication: sensing modalities, hardware error codes, dialog dismissal
// reasons, and the authenticator-type mask carried in prompt options.
//
// The numeric values mirror the wire constants used by modality hardware
// drivers and the presentation surface and must stay stable.
package biometric
