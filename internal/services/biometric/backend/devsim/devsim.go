// Package devsim is a simulated modality backend for development and local
// runs. Capture outcomes are scripted instead of sensed.
package devsim

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/louisbranch/biomgate/internal/biometric"
	apperrors "github.com/louisbranch/biomgate/internal/platform/errors"
	"github.com/louisbranch/biomgate/internal/services/biometric/backend"
)

// Outcome scripts what the simulated sensor reports once sensing starts.
type Outcome int

const (
	// OutcomeSucceed reports a matching capture with a random token.
	OutcomeSucceed Outcome = iota
	// OutcomeReject reports a non-matching capture.
	OutcomeReject
	// OutcomeTimeout reports a sensing timeout.
	OutcomeTimeout
	// OutcomeLockout reports too many failed attempts.
	OutcomeLockout
	// OutcomeSilent never reports; the session stays sensing until canceled.
	OutcomeSilent
)

// tokenSize matches the fixed-size token real sensor firmware produces.
const tokenSize = 69

type client struct {
	events              backend.Events
	caller              biometric.Caller
	requireConfirmation bool
}

// Backend simulates one biometric sensor. All hardware callbacks are
// delivered asynchronously, mirroring real sensor processes.
type Backend struct {
	modality biometric.Modality
	latency  time.Duration

	mu       sync.Mutex
	detected bool
	enrolled bool
	outcome  Outcome
	clients  map[uint32]*client
}

// Options configures a simulated backend.
type Options struct {
	Modality biometric.Modality
	// Latency delays every callback, simulating sensor processing time.
	Latency time.Duration
	Outcome Outcome
}

// New creates a detected, enrolled simulated sensor.
func New(opts Options) *Backend {
	return &Backend{
		modality: opts.Modality,
		latency:  opts.Latency,
		detected: true,
		enrolled: true,
		outcome:  opts.Outcome,
		clients:  make(map[uint32]*client),
	}
}

// SetDetected scripts the hardware probe result.
func (b *Backend) SetDetected(detected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detected = detected
}

// SetEnrolled scripts the enrollment probe result.
func (b *Backend) SetEnrolled(enrolled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enrolled = enrolled
}

// SetOutcome scripts the next capture outcome.
func (b *Backend) SetOutcome(outcome Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcome = outcome
}

// Modality implements backend.Backend.
func (b *Backend) Modality() biometric.Modality {
	return b.modality
}

// IsHardwareDetected implements backend.Backend.
func (b *Backend) IsHardwareDetected(ctx context.Context, pkg string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detected, nil
}

// HasEnrolledTemplates implements backend.Backend.
func (b *Backend) HasEnrolledTemplates(ctx context.Context, userID int32, pkg string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enrolled, nil
}

// PrepareForAuthentication registers the client and reports readiness after
// the configured latency.
func (b *Backend) PrepareForAuthentication(ctx context.Context, req backend.PrepareRequest) error {
	if req.Events == nil {
		return apperrors.New(apperrors.CodeRequestReceiverRequired, "events sink is required")
	}
	if req.Cookie == 0 {
		return apperrors.New(apperrors.CodeSessionCookieUnknown, "cookie must be non-zero")
	}

	b.mu.Lock()
	b.clients[req.Cookie] = &client{
		events:              req.Events,
		caller:              req.Caller,
		requireConfirmation: req.RequireConfirmation,
	}
	b.mu.Unlock()

	b.after(func() {
		req.Events.OnReadyForAuthentication(req.Cookie, req.RequireConfirmation, req.Caller.UserID)
	})
	return nil
}

// StartPreparedClient begins sensing and delivers the scripted outcome.
func (b *Backend) StartPreparedClient(ctx context.Context, cookie uint32) error {
	b.mu.Lock()
	c, ok := b.clients[cookie]
	outcome := b.outcome
	b.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.CodeSessionCookieUnknown, "no prepared client for cookie")
	}

	switch outcome {
	case OutcomeSucceed:
		b.after(func() {
			b.drop(cookie)
			c.events.OnAuthenticationSucceeded(c.requireConfirmation, randomToken())
		})
	case OutcomeReject:
		b.after(func() {
			c.events.OnAuthenticationFailed()
		})
	case OutcomeTimeout:
		b.after(func() {
			c.events.OnError(cookie, b.modality, biometric.ErrTimeout, 0)
		})
	case OutcomeLockout:
		b.after(func() {
			b.drop(cookie)
			c.events.OnError(cookie, b.modality, biometric.ErrLockout, 0)
		})
	case OutcomeSilent:
		// Sensing continues until canceled.
	}
	return nil
}

// CancelAuthentication stops every client of the caller and reports the
// canceled error back, as real sensor firmware does.
func (b *Backend) CancelAuthentication(ctx context.Context, req backend.CancelRequest) error {
	b.mu.Lock()
	canceled := make(map[uint32]*client)
	for cookie, c := range b.clients {
		if c.caller.UserID == req.Caller.UserID && c.caller.Package == req.Caller.Package {
			canceled[cookie] = c
			delete(b.clients, cookie)
		}
	}
	b.mu.Unlock()

	for cookie, c := range canceled {
		cookie, c := cookie, c
		b.after(func() {
			c.events.OnError(cookie, b.modality, biometric.ErrCanceled, 0)
		})
	}
	return nil
}

func (b *Backend) drop(cookie uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, cookie)
}

// after runs fn off the caller's goroutine. The orchestrator invokes backends
// under its own lock; calling back synchronously would deadlock.
func (b *Backend) after(fn func()) {
	time.AfterFunc(b.latency, fn)
}

func randomToken() []byte {
	token := make([]byte, tokenSize)
	if _, err := rand.Read(token); err != nil {
		return token
	}
	return token
}
