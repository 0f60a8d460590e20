package models

import "time"

// FormExport is the payload handed to the PDF filler collaborator when a
// dialogue completes. Data carries the stored records keyed by slot name;
// locked records are included with empty values so the filler sees the full
// slot surface of the form.
type FormExport struct {
	SessionID      string                    `json:"session_id"`
	FormType       string                    `json:"form_type"`
	Lang           string                    `json:"lang"`
	OutputTemplate string                    `json:"pdf_file"`
	Data           map[string]ResponseRecord `json:"data"`
	CreatedAt      time.Time                 `json:"created_at"`
}

// DialogueSession binds a DialogueState to its transport identity. Channel
// and Recipient are empty for API-only sessions.
type DialogueSession struct {
	SessionID string        `json:"session_id"`
	Channel   string        `json:"channel,omitempty"`
	Recipient string        `json:"recipient,omitempty"`
	State     DialogueState `json:"state"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a deep copy of the session, state included.
func (s *DialogueSession) Clone() *DialogueSession {
	cp := *s
	cp.State = *s.State.Clone()
	return &cp
}
