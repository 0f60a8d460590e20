// Package models defines state management structures for FormPilot dialogues.
package models

import "time"

// NoIndex marks an unset cursor-like index (edit target, resume point).
const NoIndex = -1

// WizardKind identifies the wizard sub-dialogue that currently owns a
// dialogue's turns. Empty means no wizard is active.
type WizardKind string

const (
	WizardKindNone             WizardKind = ""
	WizardKindLanguage         WizardKind = "language"
	WizardKindFormSelection    WizardKind = "form_selection"
	WizardKindRegisterExcerpt  WizardKind = "register_excerpt"
	WizardKindIDCard           WizardKind = "id_card"
)

// DialogueState is the complete persisted state of one form-filling dialogue.
// It is the single unit of turn-atomic persistence: a turn either commits a
// fully updated state or leaves the stored state untouched.
type DialogueState struct {
	SessionID string `json:"session_id"`
	// Lang is the ISO 639-1 code chosen in the language wizard. Empty until
	// the language wizard completes.
	Lang string `json:"lang,omitempty"`
	// FormType is the key of the selected form schema. Empty until the form
	// selection wizard completes.
	FormType  string                    `json:"form_type,omitempty"`
	Responses map[string]ResponseRecord `json:"responses"`
	// Cursor is the index of the slot currently awaiting an answer.
	Cursor int `json:"cursor"`
	// EditTargetIndex is the slot being corrected during an edit excursion,
	// NoIndex when no excursion is active.
	EditTargetIndex int `json:"edit_target_index"`
	// ResumeIndex is the cursor position to restore when the excursion ends.
	ResumeIndex int `json:"resume_index"`
	// AwaitingFirstPrompt gates the turn after form selection so the
	// selecting message is never consumed as a slot answer.
	AwaitingFirstPrompt bool         `json:"awaiting_first_prompt,omitempty"`
	ActiveWizard        WizardKind   `json:"active_wizard,omitempty"`
	Wizard              *WizardState `json:"wizard_state,omitempty"`
	Completed           bool         `json:"completed,omitempty"`
	AwaitingFinalUpload bool         `json:"awaiting_final_upload,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// NewDialogueState creates the initial state for a fresh session: the
// language wizard is active and both excursion indexes are unset.
func NewDialogueState(sessionID string) *DialogueState {
	now := time.Now().UTC()
	return &DialogueState{
		SessionID:       sessionID,
		Responses:       make(map[string]ResponseRecord),
		EditTargetIndex: NoIndex,
		ResumeIndex:     NoIndex,
		ActiveWizard:    WizardKindLanguage,
		Wizard:          &WizardState{Language: &LanguageWizardState{}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// EditActive reports whether an edit excursion is in flight.
func (s *DialogueState) EditActive() bool {
	return s.EditTargetIndex != NoIndex
}

// Clone returns a deep copy of the state. The Responses map and the wizard
// substate are copied, so mutating the clone never reaches the original. This
// is what lets a turn be discarded wholesale when an external call fails.
func (s *DialogueState) Clone() *DialogueState {
	cp := *s
	if s.Responses != nil {
		cp.Responses = make(map[string]ResponseRecord, len(s.Responses))
		for name, rec := range s.Responses {
			cp.Responses[name] = rec
		}
	}
	cp.Wizard = s.Wizard.Clone()
	return &cp
}

// WizardState holds the typed substate of the active wizard. Exactly one
// field is non-nil while a wizard is active.
type WizardState struct {
	Language        *LanguageWizardState        `json:"language,omitempty"`
	FormSelection   *FormSelectionWizardState   `json:"form_selection,omitempty"`
	RegisterExcerpt *RegisterExcerptWizardState `json:"register_excerpt,omitempty"`
	IDCard          *IDCardWizardState          `json:"id_card,omitempty"`
}

// Clone returns a deep copy of the wizard substate, nil for nil.
func (w *WizardState) Clone() *WizardState {
	if w == nil {
		return nil
	}
	cp := &WizardState{}
	if w.Language != nil {
		lang := *w.Language
		cp.Language = &lang
	}
	if w.FormSelection != nil {
		sel := *w.FormSelection
		cp.FormSelection = &sel
	}
	if w.RegisterExcerpt != nil {
		re := *w.RegisterExcerpt
		if w.RegisterExcerpt.Extracted != nil {
			ex := *w.RegisterExcerpt.Extracted
			ex.CEOs = append([]PersonRef(nil), w.RegisterExcerpt.Extracted.CEOs...)
			re.Extracted = &ex
		}
		cp.RegisterExcerpt = &re
	}
	if w.IDCard != nil {
		card := *w.IDCard
		if w.IDCard.Extracted != nil {
			ex := *w.IDCard.Extracted
			card.Extracted = &ex
		}
		cp.IDCard = &card
	}
	return cp
}

// LanguageWizardState tracks the language selection sub-dialogue.
type LanguageWizardState struct {
	Turns                int    `json:"turns"`
	LangCode             string `json:"lang_code,omitempty"`
	AwaitingConfirmation bool   `json:"awaiting_confirmation,omitempty"`
}

// FormSelectionWizardState tracks the form selection sub-dialogue.
type FormSelectionWizardState struct {
	Presented bool   `json:"presented,omitempty"`
	Selected  string `json:"selected,omitempty"`
}

// PrefillPhase sequences a document-prefill wizard.
type PrefillPhase string

const (
	PrefillPhaseAskDocument    PrefillPhase = "ask_document"
	PrefillPhaseAwaitingUpload PrefillPhase = "awaiting_upload"
	PrefillPhaseReview         PrefillPhase = "review"
	PrefillPhaseBranchAddress  PrefillPhase = "ask_branch_address"
	PrefillPhaseDone           PrefillPhase = "done"
)

// RegisterExcerptWizardState tracks the commercial-register prefill wizard.
type RegisterExcerptWizardState struct {
	Phase     PrefillPhase     `json:"phase"`
	Extracted *RegisterExcerpt `json:"extracted,omitempty"`
}

// IDCardWizardState tracks the ID-card prefill wizard.
type IDCardWizardState struct {
	Phase     PrefillPhase `json:"phase"`
	Extracted *IDCardData  `json:"extracted,omitempty"`
}

// RegisterExcerpt holds the fields extracted from a commercial-register
// excerpt document.
type RegisterExcerpt struct {
	Authority   string      `json:"authority,omitempty"`
	HRANumber   string      `json:"hra_number,omitempty"`
	CompanyName string      `json:"company_name,omitempty"`
	LegalType   string      `json:"legal_type,omitempty"`
	Activity    string      `json:"activity,omitempty"`
	Street      string      `json:"street,omitempty"`
	HouseNumber string      `json:"house_number,omitempty"`
	PostalCode  string      `json:"postal_code,omitempty"`
	City        string      `json:"city,omitempty"`
	CEOs        []PersonRef `json:"ceos,omitempty"`
}

// IDCardData holds the fields extracted from an identity card.
type IDCardData struct {
	FamilyName  string `json:"family_name,omitempty"`
	GivenName   string `json:"given_name,omitempty"`
	BirthDate   string `json:"birth_date,omitempty"` // YYYY-MM-DD as printed
	Nationality string `json:"nationality,omitempty"`
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	City        string `json:"city,omitempty"`
}

// PersonRef identifies a registered representative on an excerpt.
type PersonRef struct {
	FamilyName string `json:"family_name,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"` // YYYY-MM-DD as printed
}
