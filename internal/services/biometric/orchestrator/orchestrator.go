// Package orchestrator drives authentication sessions across modality
// backends, the presentation surface, and the token sink.
//
// All session state lives behind one mutex: caller requests, hardware
// callbacks, and surface callbacks are serialized before they touch the
// current or pending session slot. At most one session is current and at most
// one more is pending behind it.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/biomgate/internal/biometric"
	apperrors "github.com/louisbranch/biomgate/internal/platform/errors"
	"github.com/louisbranch/biomgate/internal/platform/id"
	"github.com/louisbranch/biomgate/internal/services/biometric/backend"
	"github.com/louisbranch/biomgate/internal/services/biometric/prompt"
	"github.com/louisbranch/biomgate/internal/services/biometric/registry"
	"github.com/louisbranch/biomgate/internal/services/biometric/session"
	"github.com/louisbranch/biomgate/internal/services/biometric/storage"
)

// Surface is the presentation layer the orchestrator drives. Outbound calls
// are best effort; failures are logged, never fatal to the session.
type Surface interface {
	ShowAuthenticationDialog(opts prompt.Options, modality biometric.Modality, requireConfirmation bool, userID int32, callingPackage string) error
	HideAuthenticationDialog() error
	OnBiometricAuthenticated() error
	OnBiometricError(modality biometric.Modality, code biometric.ErrorCode, vendorCode int32) error
	OnBiometricHelp(message string) error
}

// TokenSink receives the hardware authentication token of a successful
// session. Written at most once per session.
type TokenSink interface {
	AddAuthToken(hat []byte) error
}

var (
	// ErrNotShowingCredential indicates a credential verification arrived
	// while no session was on the credential path.
	ErrNotShowingCredential = apperrors.New(apperrors.CodeSessionNotShowingCred, "no session is showing the device credential")
	// ErrHATEmpty indicates a credential verification without a token.
	ErrHATEmpty = apperrors.New(apperrors.CodeSessionHATMissing, "hardware authentication token is required")
)

// Request is one caller-facing authentication request.
type Request struct {
	Caller   biometric.Caller
	Receiver session.Receiver
	Options  prompt.Options
}

// Deps groups the orchestrator collaborators.
type Deps struct {
	Registry *registry.Registry
	Settings registry.Settings
	Surface  Surface
	Sink     TokenSink
	// Audit is optional; session lifecycle events are dropped when nil.
	Audit storage.AuditStore
}

// Orchestrator is the single authority over authentication sessions.
type Orchestrator struct {
	deps   Deps
	tracer trace.Tracer

	clock       func() time.Time
	idGenerator func() (string, error)
	cookieGen   func() uint32

	mu            sync.Mutex
	current       *session.Session
	pending       *session.Session
	dialogShowing bool
}

// New creates an orchestrator with default clock, id, and cookie generators.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:        deps,
		tracer:      otel.Tracer("biomgate/orchestrator"),
		clock:       time.Now,
		idGenerator: id.NewID,
		cookieGen:   newCookie,
	}
}

// newCookie returns a random non-zero cookie. Zero is reserved so tests and
// logs can spot uninitialized correlation.
func newCookie() uint32 {
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand does not fail on supported platforms; if it ever
			// does there is no safe cookie to hand out.
			panic(fmt.Sprintf("read random cookie: %v", err))
		}
		if c := binary.BigEndian.Uint32(buf[:]); c != 0 {
			return c
		}
	}
}

// Authenticate validates the request, selects modalities, and creates a
// pending session. Pre-flight failures without a credential fallback are
// reported synchronously through the receiver and create no session.
func (o *Orchestrator) Authenticate(ctx context.Context, req Request) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Authenticate",
		trace.WithAttributes(
			attribute.String("caller.package", req.Caller.Package),
			attribute.Int("caller.user_id", int(req.Caller.UserID)),
		))
	defer span.End()

	if req.Receiver == nil {
		return session.ErrReceiverRequired
	}
	if req.Caller.Package == "" {
		return session.ErrPackageRequired
	}

	opts := req.Options.Normalize()

	o.mu.Lock()
	defer o.mu.Unlock()

	candidates, err := o.deps.Registry.CandidatesFor(ctx, req.Caller, opts)
	if err != nil {
		var preflight *registry.PreflightError
		if !errors.As(err, &preflight) {
			return err
		}
		if opts.CredentialAllowed() {
			return o.startCredentialSession(ctx, req, opts)
		}
		// No session is created; the receiver is spent right here.
		req.Receiver.OnError(preflight.Modality, preflight.Code, 0)
		return nil
	}

	return o.startBiometricSession(ctx, req, opts, candidates)
}

// startBiometricSession prepares every candidate backend and parks the new
// session in the pending slot. Callers must hold o.mu.
func (o *Orchestrator) startBiometricSession(ctx context.Context, req Request, opts prompt.Options, candidates []backend.Backend) error {
	requireConfirmation := opts.RequireConfirmation
	if o.deps.Settings != nil {
		for _, b := range candidates {
			if b.Modality() == biometric.ModalityFace && o.deps.Settings.FaceAlwaysRequireConfirmation(req.Caller.UserID) {
				requireConfirmation = true
			}
		}
	}

	sess, err := o.newSession(req, opts, requireConfirmation)
	if err != nil {
		return err
	}

	prepared := 0
	for _, b := range candidates {
		cookie := o.cookieGen()
		if err := b.PrepareForAuthentication(ctx, backend.PrepareRequest{
			RequireConfirmation: requireConfirmation,
			Caller:              req.Caller,
			Cookie:              cookie,
			Events:              o,
		}); err != nil {
			log.Printf("prepare %s for session %s: %v", b.Modality(), sess.ID, err)
			continue
		}
		sess.AddWaiting(b.Modality(), cookie)
		prepared++
	}
	if prepared == 0 {
		sess.NotifyError(biometric.ModalityNone, biometric.ErrHWUnavailable, 0)
		return nil
	}

	o.enqueuePending(ctx, sess)
	o.record(ctx, sess, "session_created")
	return nil
}

// startCredentialSession creates a session directly on the device-credential
// path when no biometric modality is usable. A current session that is still
// actively sensing winds down through the regular cancel round-trip before
// its caller hears anything; the credential session parks in the pending slot
// and is promoted when the old one finalizes. Callers must hold o.mu.
func (o *Orchestrator) startCredentialSession(ctx context.Context, req Request, opts prompt.Options) error {
	sess, err := o.newSession(req, opts.ForceCredentialOnly(), opts.RequireConfirmation)
	if err != nil {
		return err
	}
	sess.State = session.StateShowingDeviceCredential
	o.record(ctx, sess, "session_created")

	if o.current != nil && o.current.State != session.StateAuthPaused {
		o.enqueuePending(ctx, sess)
		return nil
	}

	if o.current != nil {
		// The paused sensor is idle, so no hardware round-trip is owed.
		o.current.NotifyError(o.current.ModalityMask(), biometric.ErrCanceled, 0)
		o.record(ctx, o.current, "session_superseded")
		o.hideDialog()
	}
	if o.pending != nil {
		o.pending.NotifyError(o.pending.ModalityMask(), biometric.ErrCanceled, 0)
		o.record(ctx, o.pending, "session_superseded")
		o.pending = nil
	}
	o.current = sess
	o.showDialog(sess, biometric.ModalityNone)
	return nil
}

func (o *Orchestrator) newSession(req Request, opts prompt.Options, requireConfirmation bool) (*session.Session, error) {
	sessionID, err := o.idGenerator()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	return session.New(session.Input{
		ID:                  sessionID,
		Caller:              req.Caller,
		Options:             opts,
		RequireConfirmation: requireConfirmation,
		Receiver:            req.Receiver,
		Now:                 o.clock(),
	})
}

// enqueuePending installs sess in the pending slot, preempting the current
// session's hardware when it is actively sensing. A previously queued pending
// session is superseded and its caller notified. Callers must hold o.mu.
func (o *Orchestrator) enqueuePending(ctx context.Context, sess *session.Session) {
	o.preemptCurrent(ctx)
	if o.pending != nil {
		o.pending.NotifyError(o.pending.ModalityMask(), biometric.ErrCanceled, 0)
		o.record(ctx, o.pending, "session_superseded")
	}
	o.pending = sess
}

// preemptCurrent asks the current session's hardware to abort when it is
// actively sensing. Paused sessions hold idle hardware and are left alone;
// they are dropped when the pending session is promoted.
func (o *Orchestrator) preemptCurrent(ctx context.Context) {
	if o.current == nil || o.current.State != session.StateAuthStarted {
		return
	}
	o.cancelBackends(ctx, o.current)
}

// cancelBackends issues a service-initiated cancel to every matched backend.
// The operation completes only when the canceled error comes back.
func (o *Orchestrator) cancelBackends(ctx context.Context, sess *session.Session) {
	for modality := range sess.ModalitiesMatched {
		b := o.deps.Registry.ByModality(modality)
		if b == nil {
			continue
		}
		if err := b.CancelAuthentication(ctx, backend.CancelRequest{
			Caller:     sess.Caller,
			FromClient: false,
		}); err != nil {
			log.Printf("cancel %s for session %s: %v", modality, sess.ID, err)
		}
	}
}

// OnReadyForAuthentication moves the prepared cookie to the matched set and,
// once every modality is ready, starts sensing and promotes the session.
func (o *Orchestrator) OnReadyForAuthentication(cookie uint32, requireConfirmation bool, userID int32) {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.sessionOwning(cookie)
	if sess == nil {
		log.Printf("ready callback for unknown cookie %d", cookie)
		return
	}

	owned, allReady := sess.MarkReady(cookie)
	if !owned || !allReady {
		return
	}

	sess.State = session.StateAuthStarted
	for modality, c := range sess.ModalitiesMatched {
		b := o.deps.Registry.ByModality(modality)
		if b == nil {
			continue
		}
		if err := b.StartPreparedClient(ctx, c); err != nil {
			log.Printf("start prepared client %s for session %s: %v", modality, sess.ID, err)
		}
	}
	o.record(ctx, sess, "sensing_started")

	if sess != o.pending {
		return
	}
	switch {
	case o.current == nil:
		o.current, o.pending = sess, nil
		o.showDialog(sess, sess.ModalityMask())
	case o.current.State == session.StateAuthPaused:
		// Retry promotion: the paused session is dormant and its dialog is
		// still on screen, so the new one takes over without a second show.
		o.record(ctx, o.current, "session_superseded")
		o.current, o.pending = sess, nil
	default:
		// The current session is still winding down; promotion happens when
		// it finalizes.
	}
}

// OnAuthenticationSucceeded stores the HAT and either waits for user
// confirmation or tells the surface to play its success state.
func (o *Orchestrator) OnAuthenticationSucceeded(requireConfirmation bool, hat []byte) {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || o.current.State != session.StateAuthStarted {
		log.Printf("success callback with no active session")
		return
	}

	o.current.PendingHAT = append([]byte(nil), hat...)
	if requireConfirmation {
		o.current.State = session.StatePendingConfirm
	} else {
		o.current.State = session.StateAuthenticatedPendingSurface
		o.surfaceCall(o.deps.Surface.OnBiometricAuthenticated())
	}
	o.record(ctx, o.current, "hardware_authenticated")
}

// OnAuthenticationFailed reports a rejected capture. Single-shot sensors
// pause; retryable sensors keep sensing.
func (o *Orchestrator) OnAuthenticationFailed() {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || o.current.State != session.StateAuthStarted {
		log.Printf("failure callback with no active session")
		return
	}

	o.surfaceCall(o.deps.Surface.OnBiometricError(biometric.ModalityNone, biometric.ErrPausedRejected, 0))
	o.current.NotifyFailed()
	if o.current.ModalityMask().RequiresExplicitRetry() {
		o.current.State = session.StateAuthPaused
	}
	o.record(ctx, o.current, "capture_rejected")
}

// OnAcquired forwards capture-quality help messages to the surface.
func (o *Orchestrator) OnAcquired(code int32, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || o.current.State != session.StateAuthStarted {
		return
	}
	if message == "" {
		return
	}
	o.surfaceCall(o.deps.Surface.OnBiometricHelp(message))
}

// OnError routes a hardware error to the session owning the cookie.
func (o *Orchestrator) OnError(cookie uint32, modality biometric.Modality, code biometric.ErrorCode, vendorCode int32) {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.current != nil && o.current.OwnsCookie(cookie):
		o.errorOnCurrent(ctx, modality, code, vendorCode)
	case o.pending != nil && o.pending.OwnsCookie(cookie):
		o.errorOnPending(ctx, modality, code, vendorCode)
	default:
		log.Printf("error callback for unknown cookie %d: code=%d", cookie, code)
	}
}

func (o *Orchestrator) errorOnCurrent(ctx context.Context, modality biometric.Modality, code biometric.ErrorCode, vendorCode int32) {
	sess := o.current

	switch sess.State {
	case session.StateShowingDeviceCredential:
		// The biometric path is already abandoned; late hardware errors must
		// not resurrect surface or caller notifications.
		return

	case session.StateAuthStarted:
		switch {
		case code.Lockout() && sess.Options.CredentialAllowed():
			sess.Options = sess.Options.ForceCredentialOnly()
			sess.State = session.StateShowingDeviceCredential
			o.surfaceCall(o.deps.Surface.OnBiometricError(modality, code, vendorCode))
			o.record(ctx, sess, "credential_fallback")
		case code.Lockout():
			sess.NotifyError(modality, code, vendorCode)
			o.hideDialog()
			o.finalizeCurrent(ctx, "lockout")
		case code == biometric.ErrCanceled:
			// Service-initiated preemption closed sensing; the caller learns
			// about it only after the surface acknowledges the dismissal.
			sess.PendingError = &session.PendingError{Modality: modality, Code: code, VendorCode: vendorCode}
			sess.State = session.StateErrorPendingSurface
			o.hideDialog()
		case code.Recoverable():
			sess.State = session.StateAuthPaused
			o.surfaceCall(o.deps.Surface.OnBiometricError(modality, code, vendorCode))
		default:
			sess.PendingError = &session.PendingError{Modality: modality, Code: code, VendorCode: vendorCode}
			sess.State = session.StateErrorPendingSurface
			o.surfaceCall(o.deps.Surface.OnBiometricError(modality, code, vendorCode))
		}

	case session.StateAuthPaused:
		// The sensor is idle; any hardware error while paused ends the
		// session immediately.
		sess.NotifyError(modality, code, vendorCode)
		o.hideDialog()
		o.finalizeCurrent(ctx, "error_while_paused")

	default:
		log.Printf("error callback ignored in state %s: code=%d", sess.State, code)
	}
}

func (o *Orchestrator) errorOnPending(ctx context.Context, modality biometric.Modality, code biometric.ErrorCode, vendorCode int32) {
	sess := o.pending

	if code.Lockout() && sess.Options.CredentialAllowed() && o.current == nil {
		sess.Options = sess.Options.ForceCredentialOnly()
		sess.State = session.StateShowingDeviceCredential
		o.current, o.pending = sess, nil
		o.showDialog(sess, biometric.ModalityNone)
		o.record(ctx, sess, "credential_fallback")
		return
	}

	sess.NotifyError(modality, code, vendorCode)
	o.pending = nil
	o.record(ctx, sess, "session_dropped")
}

// OnDialogDismissed applies the surface dismissal to the current session.
// Every dismissal reason retires the dialog.
func (o *Orchestrator) OnDialogDismissed(reason biometric.DismissReason) {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		log.Printf("dialog dismissed (%d) with no current session", reason)
		return
	}
	sess := o.current
	o.dialogShowing = false

	switch reason {
	case biometric.DismissConfirmed:
		if sess.State == session.StatePendingConfirm && sess.PendingHAT != nil {
			o.releaseToken(sess)
			sess.NotifySucceeded()
		} else {
			log.Printf("confirm dismissal in state %s without pending token", sess.State)
			sess.NotifyError(sess.ModalityMask(), biometric.ErrUserCanceled, 0)
		}
		o.finalizeCurrent(ctx, "confirmed")

	case biometric.DismissConfirmNotRequired:
		if sess.PendingHAT != nil {
			o.releaseToken(sess)
		}
		sess.NotifySucceeded()
		o.finalizeCurrent(ctx, "authenticated")

	case biometric.DismissServerRequested:
		if sess.State == session.StateAuthenticatedPendingSurface {
			if sess.PendingHAT != nil {
				o.releaseToken(sess)
			}
			sess.NotifySucceeded()
			o.finalizeCurrent(ctx, "authenticated")
			return
		}
		if pe := sess.PendingError; pe != nil {
			sess.NotifyError(pe.Modality, pe.Code, pe.VendorCode)
		} else {
			sess.NotifyError(sess.ModalityMask(), biometric.ErrUserCanceled, 0)
		}
		o.finalizeCurrent(ctx, "server_dismissed")

	case biometric.DismissError:
		if pe := sess.PendingError; pe != nil {
			sess.NotifyError(pe.Modality, pe.Code, pe.VendorCode)
		} else {
			log.Printf("error dismissal in state %s without pending error", sess.State)
			sess.NotifyError(sess.ModalityMask(), biometric.ErrUserCanceled, 0)
		}
		o.finalizeCurrent(ctx, "error_acknowledged")

	case biometric.DismissUserCancel:
		wasSensing := sess.State == session.StateAuthStarted
		sess.NotifyError(sess.ModalityMask(), biometric.ErrUserCanceled, 0)
		if wasSensing {
			o.cancelBackends(ctx, sess)
		}
		o.finalizeCurrent(ctx, "user_canceled")

	case biometric.DismissNegative:
		wasSensing := sess.State == session.StateAuthStarted
		sess.NotifyError(sess.ModalityMask(), biometric.ErrNegativeButton, 0)
		if wasSensing {
			o.cancelBackends(ctx, sess)
		}
		o.finalizeCurrent(ctx, "negative_button")

	default:
		log.Printf("unknown dismissal reason %d in state %s", reason, sess.State)
	}
}

// OnTryAgainPressed re-runs modality selection for the paused session's
// request. The paused session stays current until the new one is ready.
func (o *Orchestrator) OnTryAgainPressed() {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || o.current.State != session.StateAuthPaused {
		log.Printf("try again pressed with no paused session")
		return
	}
	paused := o.current

	candidates, err := o.deps.Registry.CandidatesFor(ctx, paused.Caller, paused.Options)
	if err != nil {
		log.Printf("try again for session %s: %v", paused.ID, err)
		return
	}

	req := Request{
		Caller:   paused.Caller,
		Receiver: paused.Receiver(),
		Options:  paused.Options,
	}
	if err := o.startBiometricSession(ctx, req, paused.Options, candidates); err != nil {
		log.Printf("try again for session %s: %v", paused.ID, err)
	}
}

// OnDeviceCredentialPressed abandons the biometric path in favor of the
// device credential. Sensing hardware is asked to stop; its late errors are
// ignored from here on.
func (o *Orchestrator) OnDeviceCredentialPressed() {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || !o.current.Options.CredentialAllowed() {
		log.Printf("device credential pressed with no eligible session")
		return
	}
	sess := o.current

	if sess.State == session.StateAuthStarted {
		o.cancelBackends(ctx, sess)
	}
	sess.Options = sess.Options.ForceCredentialOnly()
	sess.State = session.StateShowingDeviceCredential
	o.record(ctx, sess, "credential_fallback")
}

// OnDeviceCredentialVerified finalizes a credential-path session: the minted
// HAT goes to the token sink and the caller learns about the success.
func (o *Orchestrator) OnDeviceCredentialVerified(hat []byte) error {
	ctx := context.Background()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil || o.current.State != session.StateShowingDeviceCredential {
		return ErrNotShowingCredential
	}
	if len(hat) == 0 {
		return ErrHATEmpty
	}
	sess := o.current

	sess.PendingHAT = append([]byte(nil), hat...)
	o.releaseToken(sess)
	sess.NotifySucceeded()
	o.hideDialog()
	o.finalizeCurrent(ctx, "credential_verified")
	return nil
}

// finalizeCurrent drops the current session and promotes a pending session
// that is either fully sensing or parked on the credential path. Callers must
// hold o.mu.
func (o *Orchestrator) finalizeCurrent(ctx context.Context, outcome string) {
	if o.current != nil {
		o.record(ctx, o.current, "finalized_"+outcome)
	}
	o.current = nil

	if o.pending == nil {
		return
	}
	switch o.pending.State {
	case session.StateAuthStarted:
		o.current, o.pending = o.pending, nil
		o.showDialog(o.current, o.current.ModalityMask())
	case session.StateShowingDeviceCredential:
		o.current, o.pending = o.pending, nil
		o.showDialog(o.current, biometric.ModalityNone)
	}
}

func (o *Orchestrator) releaseToken(sess *session.Session) {
	if o.deps.Sink == nil {
		return
	}
	if err := o.deps.Sink.AddAuthToken(sess.PendingHAT); err != nil {
		log.Printf("release token for session %s: %v", sess.ID, err)
	}
}

func (o *Orchestrator) showDialog(sess *session.Session, modality biometric.Modality) {
	if o.dialogShowing {
		return
	}
	o.surfaceCall(o.deps.Surface.ShowAuthenticationDialog(
		sess.Options, modality, sess.RequireConfirmation, sess.Caller.UserID, sess.Caller.Package))
	o.dialogShowing = true
}

func (o *Orchestrator) hideDialog() {
	if !o.dialogShowing {
		return
	}
	o.surfaceCall(o.deps.Surface.HideAuthenticationDialog())
	o.dialogShowing = false
}

func (o *Orchestrator) surfaceCall(err error) {
	if err != nil {
		log.Printf("presentation surface: %v", err)
	}
}

func (o *Orchestrator) sessionOwning(cookie uint32) *session.Session {
	if o.pending != nil && o.pending.WaitingCookie(cookie) {
		return o.pending
	}
	if o.current != nil && o.current.WaitingCookie(cookie) {
		return o.current
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, sess *session.Session, kind string) {
	if o.deps.Audit == nil {
		return
	}
	evt := storage.AuditEvent{
		SessionID: sess.ID,
		Kind:      kind,
		State:     sess.State.String(),
		Package:   sess.Caller.Package,
		UserID:    sess.Caller.UserID,
		Modality:  uint32(sess.ModalityMask()),
		At:        o.clock().UTC(),
	}
	if err := o.deps.Audit.AppendAuditEvent(ctx, evt); err != nil {
		log.Printf("append audit event for session %s: %v", sess.ID, err)
	}
}
