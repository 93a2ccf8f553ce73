// Package settings tracks per-user biometric preferences consulted during
// request validation.
package settings

import "sync"

// Defaults holds the values used for users with no explicit preference.
type Defaults struct {
	FaceEnabledForApps           bool
	FaceAlwaysRequireConfirmation bool
}

// Store keeps per-user biometric settings. The zero value is not usable; use
// New. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	defaults Defaults
	users    map[int32]userSettings
}

type userSettings struct {
	faceEnabledForApps            *bool
	faceAlwaysRequireConfirmation *bool
}

// New creates a settings store with the given defaults.
func New(defaults Defaults) *Store {
	return &Store{
		defaults: defaults,
		users:    make(map[int32]userSettings),
	}
}

// FaceEnabledForApps reports whether apps may use face authentication for the
// user. A disabled modality is treated as unavailable hardware.
func (s *Store) FaceEnabledForApps(userID int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok && u.faceEnabledForApps != nil {
		return *u.faceEnabledForApps
	}
	return s.defaults.FaceEnabledForApps
}

// FaceAlwaysRequireConfirmation reports whether face sessions for the user
// must require explicit confirmation regardless of caller options.
func (s *Store) FaceAlwaysRequireConfirmation(userID int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok && u.faceAlwaysRequireConfirmation != nil {
		return *u.faceAlwaysRequireConfirmation
	}
	return s.defaults.FaceAlwaysRequireConfirmation
}

// SetFaceEnabledForApps overrides the face-enabled preference for a user.
func (s *Store) SetFaceEnabledForApps(userID int32, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.faceEnabledForApps = &enabled
	s.users[userID] = u
}

// SetFaceAlwaysRequireConfirmation overrides the confirmation preference for
// a user.
func (s *Store) SetFaceAlwaysRequireConfirmation(userID int32, required bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.faceAlwaysRequireConfirmation = &required
	s.users[userID] = u
}
