package orchestrator

import (
	"github.com/louisbranch/biomgate/internal/services/biometric/session"
)

// SessionView is a read-only summary of a live session for introspection.
type SessionView struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Package  string `json:"package"`
	UserID   int32  `json:"user_id"`
	Modality string `json:"modality"`
}

// Snapshot describes the orchestrator's live sessions.
type Snapshot struct {
	Current       *SessionView `json:"current,omitempty"`
	Pending       *SessionView `json:"pending,omitempty"`
	DialogShowing bool         `json:"dialog_showing"`
}

// Sessions returns a point-in-time view of the current and pending sessions.
func (o *Orchestrator) Sessions() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Snapshot{
		Current:       viewOf(o.current),
		Pending:       viewOf(o.pending),
		DialogShowing: o.dialogShowing,
	}
}

func viewOf(sess *session.Session) *SessionView {
	if sess == nil {
		return nil
	}
	return &SessionView{
		ID:       sess.ID,
		State:    sess.State.String(),
		Package:  sess.Caller.Package,
		UserID:   sess.Caller.UserID,
		Modality: sess.ModalityMask().String(),
	}
}
