package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/store"
)

// SessionManager owns the lifecycle of dialogue sessions: creation, lookup,
// per-session serialization of turns, and turn-atomic persistence. A turn
// either commits the advanced state plus its transcript entries, or leaves
// the stored state exactly as it was.
type SessionManager struct {
	store  store.Store
	engine *Engine

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	onComplete func(*models.DialogueSession)
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(st store.Store, engine *Engine) *SessionManager {
	return &SessionManager{
		store:  st,
		engine: engine,
		locks:  make(map[string]*sync.Mutex),
	}
}

// OnComplete registers a callback invoked after a completing turn has been
// persisted, with the final session. Used to hand the export payload to the
// PDF filling side.
func (m *SessionManager) OnComplete(fn func(*models.DialogueSession)) {
	m.onComplete = fn
}

// sessionLock returns the mutex serializing turns for one session.
func (m *SessionManager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}

// Create starts a fresh session and returns it together with the opening
// turn (the language greeting).
func (m *SessionManager) Create(ctx context.Context, channel, recipient string) (*models.DialogueSession, *Turn, error) {
	sessionID := uuid.NewString()
	state := models.NewDialogueState(sessionID)

	turn, err := m.engine.Advance(ctx, state, "")
	if err != nil {
		return nil, nil, fmt.Errorf("SessionManager.Create: %w", err)
	}

	session := &models.DialogueSession{
		SessionID: sessionID,
		Channel:   channel,
		Recipient: recipient,
		State:     *state,
		CreatedAt: state.CreatedAt,
		UpdatedAt: state.UpdatedAt,
	}
	if err := m.store.SaveSession(session); err != nil {
		return nil, nil, fmt.Errorf("SessionManager.Create: %w", err)
	}
	m.appendTranscript(sessionID, "", turn)
	slog.Info("SessionManager.Create: session created", "sessionID", sessionID, "channel", channel)
	return session, turn, nil
}

// Get returns the stored session, or models.ErrSessionNotFound.
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*models.DialogueSession, error) {
	session, err := m.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("SessionManager.Get: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %q", models.ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// FindByRecipient returns the most recent open session for a channel
// recipient, or nil when none exists.
func (m *SessionManager) FindByRecipient(ctx context.Context, channel, recipient string) (*models.DialogueSession, error) {
	sessions, err := m.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("SessionManager.FindByRecipient: %w", err)
	}
	var latest *models.DialogueSession
	for _, session := range sessions {
		if session.Channel != channel || session.Recipient != recipient || session.State.Completed {
			continue
		}
		if latest == nil || session.UpdatedAt.After(latest.UpdatedAt) {
			latest = session
		}
	}
	return latest, nil
}

// Advance runs one turn for the session. External collaborator failures
// degrade into the retry message and leave the stored state untouched.
func (m *SessionManager) Advance(ctx context.Context, sessionID, userText string) (*Turn, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// the engine works on a copy so a failed turn discards its mutations
	state := session.State
	turn, err := m.engine.Advance(ctx, &state, userText)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrDialogueCompleted):
		return nil, err
	case errors.Is(err, models.ErrConditionSourceUnanswered):
		// schema bug, surface it instead of looping on the retry message
		return nil, err
	default:
		slog.Error("SessionManager.Advance: turn failed, degrading", "sessionID", sessionID, "error", err)
		return &Turn{Messages: []string{m.engine.RetryMessage(ctx, &session.State)}}, nil
	}

	session.State = state
	session.UpdatedAt = state.UpdatedAt
	if err := m.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("SessionManager.Advance: %w", err)
	}
	m.appendTranscript(sessionID, userText, turn)
	if turn.Completed && m.onComplete != nil {
		m.onComplete(session)
	}
	return turn, nil
}

// IngestDocument feeds an uploaded document into the session's active
// wizard, with the same locking and atomicity as Advance.
func (m *SessionManager) IngestDocument(ctx context.Context, sessionID string, image []byte, mimeType string) (*Turn, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state := session.State
	turn, err := m.engine.IngestDocument(ctx, &state, image, mimeType)
	if err != nil {
		if errors.Is(err, ErrNoDocumentExpected) || errors.Is(err, models.ErrDialogueCompleted) {
			return nil, err
		}
		slog.Error("SessionManager.IngestDocument: extraction failed, degrading", "sessionID", sessionID, "error", err)
		return &Turn{Messages: []string{m.engine.RetryMessage(ctx, &session.State)}}, nil
	}

	session.State = state
	session.UpdatedAt = state.UpdatedAt
	if err := m.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("SessionManager.IngestDocument: %w", err)
	}
	m.appendTranscript(sessionID, "", turn)
	if turn.Completed && m.onComplete != nil {
		m.onComplete(session)
	}
	return turn, nil
}

// Transcript returns the session's persisted transcript.
func (m *SessionManager) Transcript(ctx context.Context, sessionID string) ([]models.TranscriptMessage, error) {
	if _, err := m.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	transcript, err := m.store.GetTranscript(sessionID)
	if err != nil {
		return nil, fmt.Errorf("SessionManager.Transcript: %w", err)
	}
	return transcript, nil
}

// appendTranscript records a turn. Transcript writes are best effort; a
// failed insert never fails the turn.
func (m *SessionManager) appendTranscript(sessionID, userText string, turn *Turn) {
	now := time.Now().UTC()
	if userText != "" {
		if err := m.store.AddTranscriptMessage(models.TranscriptMessage{
			SessionID: sessionID, Role: models.TranscriptRoleUser, Body: userText, Time: now,
		}); err != nil {
			slog.Error("SessionManager: transcript write failed", "sessionID", sessionID, "error", err)
		}
	}
	for _, msg := range turn.Messages {
		if err := m.store.AddTranscriptMessage(models.TranscriptMessage{
			SessionID: sessionID, Role: models.TranscriptRoleAssistant, Body: msg, Time: now,
		}); err != nil {
			slog.Error("SessionManager: transcript write failed", "sessionID", sessionID, "error", err)
		}
	}
}
