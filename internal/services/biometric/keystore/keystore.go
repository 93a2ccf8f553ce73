// Package keystore holds released hardware authentication tokens in locked
// memory until downstream consumers collect them.
package keystore

import (
	"sync"

	"github.com/awnumar/memguard"

	apperrors "github.com/louisbranch/biomgate/internal/platform/errors"
)

var (
	// ErrTokenEmpty indicates an attempt to store an empty token.
	ErrTokenEmpty = apperrors.New(apperrors.CodeKeystoreTokenEmpty, "auth token is empty")
	// ErrSealed indicates the keystore was destroyed and no longer accepts
	// tokens.
	ErrSealed = apperrors.New(apperrors.CodeKeystoreSealed, "keystore is sealed")
)

// Keystore retains the most recent authentication tokens in mlocked enclaves.
// Retention is bounded; storing beyond the capacity wipes the oldest token.
type Keystore struct {
	mu       sync.Mutex
	capacity int
	tokens   []*memguard.Enclave
	sealed   bool
}

// New creates a keystore retaining up to capacity tokens. Non-positive
// capacities fall back to 1.
func New(capacity int) *Keystore {
	if capacity < 1 {
		capacity = 1
	}
	return &Keystore{capacity: capacity}
}

// AddAuthToken seals the token into locked memory. The caller's buffer is
// wiped as a side effect of sealing.
func (k *Keystore) AddAuthToken(hat []byte) error {
	if len(hat) == 0 {
		return ErrTokenEmpty
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.sealed {
		return ErrSealed
	}

	// NewEnclave wipes hat; keep the orchestrator's copy intact.
	buf := append([]byte(nil), hat...)
	k.tokens = append(k.tokens, memguard.NewEnclave(buf))
	if len(k.tokens) > k.capacity {
		k.tokens = k.tokens[1:]
	}
	return nil
}

// Take removes and returns the oldest retained token. The returned buffer must
// be destroyed by the caller. Returns nil when the keystore is empty.
func (k *Keystore) Take() (*memguard.LockedBuffer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.sealed {
		return nil, ErrSealed
	}
	if len(k.tokens) == 0 {
		return nil, nil
	}

	enclave := k.tokens[0]
	k.tokens = k.tokens[1:]
	buf, err := enclave.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeKeystoreSealed, "open token enclave", err)
	}
	return buf, nil
}

// Len reports how many tokens are retained.
func (k *Keystore) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.tokens)
}

// Seal drops all retained tokens and rejects further writes.
func (k *Keystore) Seal() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.tokens = nil
	k.sealed = true
}
