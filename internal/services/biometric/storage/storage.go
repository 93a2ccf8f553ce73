// Package storage defines the persistence interfaces for the biometric
// service.
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/biomgate/internal/platform/errors"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = apperrors.New(apperrors.CodeSessionNotFound, "record not found")

// AuditEvent is one session lifecycle event in the audit trail.
type AuditEvent struct {
	SessionID string
	Kind      string
	State     string
	Package   string
	UserID    int32
	Modality  uint32
	At        time.Time
}

// AuditStore appends and reads session audit events.
type AuditStore interface {
	// AppendAuditEvent records one lifecycle event.
	AppendAuditEvent(ctx context.Context, evt AuditEvent) error
	// ListAuditEvents returns the events for a session in append order.
	ListAuditEvents(ctx context.Context, sessionID string) ([]AuditEvent, error)
}
