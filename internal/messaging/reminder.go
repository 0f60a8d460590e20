package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/CivicForms/FormPilot/internal/store"
	"github.com/CivicForms/FormPilot/internal/translate"
)

// DefaultReminderIdle is how long a dialogue may sit untouched before a
// reminder is considered.
const DefaultReminderIdle = 24 * time.Hour

// ReminderNudger sends a one-off nudge to open dialogues that have been idle
// for longer than the configured window. Run is invoked periodically by the
// scheduler; each session is nudged at most once per idle period.
type ReminderNudger struct {
	channel   string
	service   Service
	store     store.Store
	idleAfter time.Duration

	mu     sync.Mutex
	nudged map[string]time.Time // sessionID -> UpdatedAt at nudge time
}

// NewReminderNudger creates a nudger for one channel service.
func NewReminderNudger(channel string, service Service, st store.Store, idleAfter time.Duration) *ReminderNudger {
	if idleAfter <= 0 {
		idleAfter = DefaultReminderIdle
	}
	return &ReminderNudger{
		channel:   channel,
		service:   service,
		store:     st,
		idleAfter: idleAfter,
		nudged:    make(map[string]time.Time),
	}
}

// Run scans the session store once and nudges every stalled dialogue on this
// channel. Send failures are logged and retried on the next run.
func (n *ReminderNudger) Run(ctx context.Context) {
	sessions, err := n.store.ListSessions()
	if err != nil {
		slog.Error("ReminderNudger.Run: listing sessions failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-n.idleAfter)
	for _, session := range sessions {
		if session.Channel != n.channel || session.Recipient == "" || session.State.Completed {
			continue
		}
		if session.UpdatedAt.After(cutoff) {
			continue
		}

		n.mu.Lock()
		// already nudged for this idle period and the user has not replied since
		if at, ok := n.nudged[session.SessionID]; ok && !session.UpdatedAt.After(at) {
			n.mu.Unlock()
			continue
		}
		n.nudged[session.SessionID] = session.UpdatedAt
		n.mu.Unlock()

		msg := translate.ReminderMessage(session.State.Lang)
		if err := n.service.SendMessage(ctx, session.Recipient, msg); err != nil {
			slog.Error("ReminderNudger.Run: nudge failed", "sessionID", session.SessionID, "error", err)
			n.mu.Lock()
			delete(n.nudged, session.SessionID)
			n.mu.Unlock()
			continue
		}
		slog.Info("ReminderNudger.Run: reminder sent", "sessionID", session.SessionID, "idle_since", session.UpdatedAt)
	}
}
