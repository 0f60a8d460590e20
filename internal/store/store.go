// Package store provides storage backends for FormPilot.
//
// It includes an in-memory store for tests and single-process setups, plus
// SQLite and PostgreSQL stores sharing one schema of dialogue sessions,
// transcripts, receipts, and responses.
package store

import (
	"sort"
	"sync"

	"github.com/CivicForms/FormPilot/internal/models"
)

// Store is the persistence interface the rest of FormPilot programs against.
// A missing session is reported as (nil, nil), not an error.
type Store interface {
	SaveSession(session *models.DialogueSession) error
	GetSession(sessionID string) (*models.DialogueSession, error)
	DeleteSession(sessionID string) error
	ListSessions() ([]*models.DialogueSession, error)

	AddTranscriptMessage(msg models.TranscriptMessage) error
	GetTranscript(sessionID string) ([]models.TranscriptMessage, error)

	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)

	Close() error
}

// InMemoryStore keeps everything in process memory. Safe for concurrent use.
type InMemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*models.DialogueSession
	transcripts map[string][]models.TranscriptMessage
	receipts    []models.Receipt
	responses   []models.Response
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:    make(map[string]*models.DialogueSession),
		transcripts: make(map[string][]models.TranscriptMessage),
	}
}

func (s *InMemoryStore) SaveSession(session *models.DialogueSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// deep copy so a caller mutating its session afterwards cannot reach the
	// stored state, matching the isolation of the SQL backends
	s.sessions[session.SessionID] = session.Clone()
	return nil
}

func (s *InMemoryStore) GetSession(sessionID string) (*models.DialogueSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return session.Clone(), nil
}

func (s *InMemoryStore) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.transcripts, sessionID)
	return nil
}

func (s *InMemoryStore) ListSessions() ([]*models.DialogueSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*models.DialogueSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session.Clone())
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })
	return sessions, nil
}

func (s *InMemoryStore) AddTranscriptMessage(msg models.TranscriptMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[msg.SessionID] = append(s.transcripts[msg.SessionID], msg)
	return nil
}

func (s *InMemoryStore) GetTranscript(sessionID string) ([]models.TranscriptMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transcript := make([]models.TranscriptMessage, len(s.transcripts[sessionID]))
	copy(transcript, s.transcripts[sessionID])
	return transcript, nil
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipts := make([]models.Receipt, len(s.receipts))
	copy(receipts, s.receipts)
	return receipts, nil
}

func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	responses := make([]models.Response, len(s.responses))
	copy(responses, s.responses)
	return responses, nil
}

func (s *InMemoryStore) Close() error { return nil }
