// Package recovery validates persisted dialogue sessions on startup so
// FormPilot restarts gracefully. Sessions that no longer match the loaded
// form schemas are dropped instead of wedging the dialogue loop.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/store"
)

// Stats summarizes one recovery pass.
type Stats struct {
	Scanned   int
	Open      int
	Completed int
	Dropped   int
}

// Manager runs the startup recovery pass over the session store.
type Manager struct {
	store store.Store
	forms *schema.Registry
}

// NewManager creates a recovery manager.
func NewManager(st store.Store, forms *schema.Registry) *Manager {
	return &Manager{store: st, forms: forms}
}

// RecoverSessions scans all persisted sessions and drops the ones that can
// no longer be resumed. A drop failure is logged, not fatal; the session
// will be retried on the next restart.
func (m *Manager) RecoverSessions(ctx context.Context) (Stats, error) {
	var stats Stats

	sessions, err := m.store.ListSessions()
	if err != nil {
		return stats, fmt.Errorf("Manager.RecoverSessions: %w", err)
	}

	for _, session := range sessions {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Scanned++

		if session.State.Completed {
			stats.Completed++
			continue
		}

		if reason := m.validate(session); reason != "" {
			slog.Warn("Manager.RecoverSessions: dropping unresumable session",
				"sessionID", session.SessionID, "reason", reason)
			if err := m.store.DeleteSession(session.SessionID); err != nil {
				slog.Error("Manager.RecoverSessions: failed to drop session",
					"sessionID", session.SessionID, "error", err)
			}
			stats.Dropped++
			continue
		}
		stats.Open++
	}

	slog.Info("Manager.RecoverSessions: recovery completed",
		"scanned", stats.Scanned, "open", stats.Open, "completed", stats.Completed, "dropped", stats.Dropped)
	return stats, nil
}

// validate returns a non-empty reason when the session cannot resume
// against the currently loaded schemas.
func (m *Manager) validate(session *models.DialogueSession) string {
	st := &session.State

	switch st.ActiveWizard {
	case models.WizardKindNone, models.WizardKindLanguage, models.WizardKindFormSelection,
		models.WizardKindRegisterExcerpt, models.WizardKindIDCard:
	default:
		return fmt.Sprintf("unknown wizard %q", st.ActiveWizard)
	}

	// sessions before form selection carry no form yet
	if st.FormType == "" {
		if st.ActiveWizard == models.WizardKindNone {
			return "no form selected outside a wizard"
		}
		return ""
	}

	form, err := m.forms.Get(st.FormType)
	if err != nil {
		return fmt.Sprintf("form %q no longer loaded", st.FormType)
	}

	if st.Cursor < 0 || st.Cursor > len(form.Slots) {
		return fmt.Sprintf("cursor %d out of range for form %q", st.Cursor, st.FormType)
	}
	for name := range st.Responses {
		if form.SlotIndex(name) == models.NoIndex {
			return fmt.Sprintf("response for unknown slot %q", name)
		}
	}
	return ""
}
