package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CivicForms/FormPilot/internal/extract"
	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/translate"
)

// Engine is the dialogue orchestrator. It routes each incoming message to the
// active wizard or the slot loop, and composes the outgoing messages in the
// dialogue language. The engine mutates the passed state in place; callers own
// persistence and concurrency.
type Engine struct {
	forms      *schema.Registry
	processor  *Processor
	edits      *EditController
	translator translate.Translator
	detector   LanguageDetector
	approver   ApprovalClassifier
	localizer  FormListLocalizer
	extractor  extract.Extractor
}

// EngineOpts carries the engine's collaborators.
type EngineOpts struct {
	Forms      *schema.Registry
	Processor  *Processor
	Edits      *EditController
	Translator translate.Translator
	Detector   LanguageDetector
	Approver   ApprovalClassifier
	Localizer  FormListLocalizer
	Extractor  extract.Extractor
}

// NewEngine creates an Engine from its collaborators.
func NewEngine(opts EngineOpts) *Engine {
	return &Engine{
		forms:      opts.Forms,
		processor:  opts.Processor,
		edits:      opts.Edits,
		translator: opts.Translator,
		detector:   opts.Detector,
		approver:   opts.Approver,
		localizer:  opts.Localizer,
		extractor:  opts.Extractor,
	}
}

// Turn is the outcome of one advance: the outgoing messages in the dialogue
// language, in order, and whether this turn completed the form.
type Turn struct {
	Messages  []string
	Completed bool
}

// Advance processes one user message and returns the reply. An error from an
// external collaborator leaves the state untouched except for UpdatedAt, and
// the caller should surface RetryMessage instead of the error detail.
func (e *Engine) Advance(ctx context.Context, st *models.DialogueState, userText string) (*Turn, error) {
	if st.Completed {
		return nil, models.ErrDialogueCompleted
	}

	turn, err := e.advance(ctx, st, userText)
	if err != nil {
		return nil, err
	}
	st.UpdatedAt = time.Now().UTC()
	return turn, nil
}

// RetryMessage returns the degradation message for a failed turn, translated
// into the dialogue language when possible.
func (e *Engine) RetryMessage(ctx context.Context, st *models.DialogueState) string {
	msg, err := e.translator.FromGerman(ctx, genericRetryMessage, st.Lang)
	if err != nil {
		// translator down as well, German still beats silence
		return genericRetryMessage
	}
	return msg
}

func (e *Engine) advance(ctx context.Context, st *models.DialogueState, userText string) (*Turn, error) {
	var out []string

	// wizards run to completion before the slot loop; a finishing wizard
	// falls through to the next stage within the same turn
	for st.ActiveWizard != models.WizardKindNone {
		msgs, done, err := e.stepWizard(ctx, st, userText)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
		if !done {
			return &Turn{Messages: out}, nil
		}
		userText = ""
	}

	form, err := e.forms.Get(st.FormType)
	if err != nil {
		return nil, fmt.Errorf("Engine.Advance: %w", err)
	}

	if st.AwaitingFirstPrompt {
		st.AwaitingFirstPrompt = false
		return e.promptOrComplete(ctx, form, st, out)
	}

	if st.AwaitingFinalUpload {
		return e.stepFinalUpload(ctx, st, userText, out)
	}

	// slot loop: edit detection first, then the pending slot
	edit, err := e.edits.Maybe(ctx, form, st, userText)
	if err != nil {
		return nil, err
	}
	if edit.Claimed {
		msgs, err := e.localize(ctx, st, edit.Messages)
		if err != nil {
			return nil, err
		}
		return &Turn{Messages: append(out, msgs...)}, nil
	}

	idx, err := ResolveNext(form.Slots, st)
	if err != nil {
		return nil, fmt.Errorf("Engine.Advance: %w", err)
	}
	if idx == models.NoIndex {
		return e.promptOrComplete(ctx, form, st, out)
	}

	outcome, err := e.processor.ProcessAnswer(ctx, form, st, idx, userText)
	if err != nil {
		return nil, err
	}
	if !outcome.Stored {
		msgs, err := e.localize(ctx, st, []string{outcome.Reprompt})
		if err != nil {
			return nil, err
		}
		return &Turn{Messages: append(out, msgs...)}, nil
	}
	msgs, err := e.localize(ctx, st, outcome.Messages)
	if err != nil {
		return nil, err
	}
	out = append(out, msgs...)

	return e.promptOrComplete(ctx, form, st, out)
}

// promptOrComplete resolves the next open slot and either prompts for it or
// finishes the form.
func (e *Engine) promptOrComplete(ctx context.Context, form *schema.Form, st *models.DialogueState, out []string) (*Turn, error) {
	idx, err := ResolveNext(form.Slots, st)
	if err != nil {
		return nil, fmt.Errorf("Engine.Advance: %w", err)
	}
	if idx != models.NoIndex {
		msgs, err := e.localize(ctx, st, []string{renderPrompt(&form.Slots[idx])})
		if err != nil {
			return nil, err
		}
		return &Turn{Messages: append(out, msgs...)}, nil
	}

	if form.FinalUpload && !st.AwaitingFinalUpload {
		st.AwaitingFinalUpload = true
		msgs, err := e.localize(ctx, st, []string{
			"Fast geschafft. Falls Sie ein unterstützendes Dokument haben, laden Sie es jetzt hoch. Schreiben Sie 'weiter', um ohne Dokument abzuschließen.",
		})
		if err != nil {
			return nil, err
		}
		return &Turn{Messages: append(out, msgs...)}, nil
	}

	return e.complete(ctx, st, out)
}

func (e *Engine) stepFinalUpload(ctx context.Context, st *models.DialogueState, userText string, out []string) (*Turn, error) {
	if skipWords[strings.ToLower(strings.TrimSpace(userText))] {
		st.AwaitingFinalUpload = false
		return e.complete(ctx, st, out)
	}
	msgs, err := e.localize(ctx, st, []string{
		"Bitte laden Sie das Dokument hoch, oder schreiben Sie 'weiter', um ohne Dokument abzuschließen.",
	})
	if err != nil {
		return nil, err
	}
	return &Turn{Messages: append(out, msgs...)}, nil
}

// complete marks the dialogue finished and emits the completion message. The
// completion fires exactly once; later messages hit ErrDialogueCompleted.
func (e *Engine) complete(ctx context.Context, st *models.DialogueState, out []string) (*Turn, error) {
	text, needsTranslation := translate.CompletionMessage(st.Lang)
	if needsTranslation {
		translated, err := e.translator.FromGerman(ctx, text, st.Lang)
		if err != nil {
			return nil, fmt.Errorf("Engine.Advance: translating completion: %w", err)
		}
		text = translated
	}
	st.Completed = true
	slog.Info("Engine.Advance: dialogue completed", "sessionID", st.SessionID, "form", st.FormType)
	return &Turn{Messages: append(out, text), Completed: true}, nil
}

// stepWizard advances the active wizard by one turn. done reports that the
// wizard finished and the engine moved the dialogue to its next stage.
func (e *Engine) stepWizard(ctx context.Context, st *models.DialogueState, userText string) ([]string, bool, error) {
	switch st.ActiveWizard {
	case models.WizardKindLanguage:
		return e.stepLanguage(ctx, st, userText)
	case models.WizardKindFormSelection:
		return e.stepFormSelection(ctx, st, userText)
	case models.WizardKindRegisterExcerpt, models.WizardKindIDCard:
		return e.stepPrefill(ctx, st, userText)
	default:
		return nil, false, fmt.Errorf("Engine.Advance: unknown wizard %q", st.ActiveWizard)
	}
}

func (e *Engine) stepLanguage(ctx context.Context, st *models.DialogueState, userText string) ([]string, bool, error) {
	if st.Wizard == nil || st.Wizard.Language == nil {
		st.Wizard = &models.WizardState{Language: &models.LanguageWizardState{}}
	}
	w := NewLanguageWizard(st.Wizard.Language, e.detector, e.approver)
	msg, done, lang, err := w.Step(ctx, userText)
	if err != nil {
		return nil, false, err
	}
	if !done {
		return nonEmpty(msg), false, nil
	}

	st.Lang = lang
	st.ActiveWizard = models.WizardKindFormSelection
	st.Wizard = &models.WizardState{FormSelection: &models.FormSelectionWizardState{}}

	msgs := nonEmpty(msg)
	instruction, needsTranslation := translate.InstructionMessage(lang)
	if needsTranslation {
		instruction, err = e.translator.FromGerman(ctx, instruction, lang)
		if err != nil {
			return nil, false, fmt.Errorf("Engine.Advance: translating instructions: %w", err)
		}
	}
	return append(msgs, instruction), true, nil
}

func (e *Engine) stepFormSelection(ctx context.Context, st *models.DialogueState, userText string) ([]string, bool, error) {
	if st.Wizard == nil || st.Wizard.FormSelection == nil {
		st.Wizard = &models.WizardState{FormSelection: &models.FormSelectionWizardState{}}
	}
	w := NewFormSelectionWizard(st.Wizard.FormSelection, e.forms, st.Lang, e.localizer)
	msg, done, _, err := w.Step(ctx, userText)
	if err != nil {
		return nil, false, err
	}
	if !done {
		return nonEmpty(msg), false, nil
	}

	form, err := e.forms.Get(w.Selected())
	if err != nil {
		return nil, false, fmt.Errorf("Engine.Advance: %w", err)
	}
	st.FormType = form.Key
	st.Cursor = 0
	st.AwaitingFirstPrompt = true

	switch models.WizardKind(form.PrefillWizard) {
	case models.WizardKindRegisterExcerpt:
		st.ActiveWizard = models.WizardKindRegisterExcerpt
		st.Wizard = &models.WizardState{RegisterExcerpt: &models.RegisterExcerptWizardState{}}
	case models.WizardKindIDCard:
		st.ActiveWizard = models.WizardKindIDCard
		st.Wizard = &models.WizardState{IDCard: &models.IDCardWizardState{}}
	default:
		st.ActiveWizard = models.WizardKindNone
		st.Wizard = nil
	}
	return nonEmpty(msg), true, nil
}

func (e *Engine) stepPrefill(ctx context.Context, st *models.DialogueState, userText string) ([]string, bool, error) {
	form, err := e.forms.Get(st.FormType)
	if err != nil {
		return nil, false, fmt.Errorf("Engine.Advance: %w", err)
	}

	var msg string
	var done bool
	switch st.ActiveWizard {
	case models.WizardKindRegisterExcerpt:
		if st.Wizard == nil || st.Wizard.RegisterExcerpt == nil {
			st.Wizard = &models.WizardState{RegisterExcerpt: &models.RegisterExcerptWizardState{}}
		}
		w := NewRegisterExcerptWizard(st.Wizard.RegisterExcerpt)
		msg, done, _, err = w.Step(ctx, userText)
		if err == nil && done {
			applyRegisterExcerpt(form, st, st.Wizard.RegisterExcerpt.Extracted, w.BranchAddressDiffers())
		}
	default:
		if st.Wizard == nil || st.Wizard.IDCard == nil {
			st.Wizard = &models.WizardState{IDCard: &models.IDCardWizardState{}}
		}
		w := NewIDCardWizard(st.Wizard.IDCard)
		msg, done, _, err = w.Step(ctx, userText)
		if err == nil && done {
			applyIDCard(form, st, st.Wizard.IDCard.Extracted)
		}
	}
	if err != nil {
		return nil, false, err
	}
	if !done {
		msgs, err := e.localize(ctx, st, nonEmpty(msg))
		if err != nil {
			return nil, false, err
		}
		return msgs, false, nil
	}

	st.ActiveWizard = models.WizardKindNone
	st.Wizard = nil
	msgs, err := e.localize(ctx, st, nonEmpty(msg))
	if err != nil {
		return nil, false, err
	}
	return msgs, true, nil
}

// ErrNoDocumentExpected signals an upload outside a wizard upload phase.
var ErrNoDocumentExpected = errors.New("no document expected in the current dialogue phase")

// IngestDocument feeds an uploaded document into the active prefill wizard.
// Extraction happens here; the returned messages ask the user to review the
// extracted values.
func (e *Engine) IngestDocument(ctx context.Context, st *models.DialogueState, image []byte, mimeType string) (*Turn, error) {
	if st.Completed {
		return nil, models.ErrDialogueCompleted
	}

	switch st.ActiveWizard {
	case models.WizardKindRegisterExcerpt:
		ws := st.Wizard.RegisterExcerpt
		if ws.Phase != models.PrefillPhaseAwaitingUpload {
			return nil, ErrNoDocumentExpected
		}
		extracted, err := e.extractor.ExtractRegisterExcerpt(ctx, image, mimeType)
		if err != nil {
			return nil, fmt.Errorf("Engine.IngestDocument: %w", err)
		}
		ws.Extracted = extracted
		ws.Phase = models.PrefillPhaseReview
		msgs, err := e.localize(ctx, st, []string{NewRegisterExcerptWizard(ws).ReviewMessage()})
		if err != nil {
			return nil, err
		}
		st.UpdatedAt = time.Now().UTC()
		return &Turn{Messages: msgs}, nil

	case models.WizardKindIDCard:
		ws := st.Wizard.IDCard
		if ws.Phase != models.PrefillPhaseAwaitingUpload {
			return nil, ErrNoDocumentExpected
		}
		extracted, err := e.extractor.ExtractIDCard(ctx, image, mimeType)
		if err != nil {
			return nil, fmt.Errorf("Engine.IngestDocument: %w", err)
		}
		ws.Extracted = extracted
		ws.Phase = models.PrefillPhaseReview
		msgs, err := e.localize(ctx, st, []string{NewIDCardWizard(ws).ReviewMessage()})
		if err != nil {
			return nil, err
		}
		st.UpdatedAt = time.Now().UTC()
		return &Turn{Messages: msgs}, nil

	case models.WizardKindNone:
		if st.AwaitingFinalUpload {
			// the supporting document is stored by the caller; the dialogue
			// just acknowledges and completes
			st.AwaitingFinalUpload = false
			turn, err := e.complete(ctx, st, nil)
			if err != nil {
				return nil, err
			}
			st.UpdatedAt = time.Now().UTC()
			return turn, nil
		}
	}
	return nil, ErrNoDocumentExpected
}

// localize translates the German messages into the dialogue language.
func (e *Engine) localize(ctx context.Context, st *models.DialogueState, messages []string) ([]string, error) {
	if st.Lang == "" || st.Lang == "de" {
		return messages, nil
	}
	out := make([]string, len(messages))
	for i, m := range messages {
		translated, err := e.translator.FromGerman(ctx, m, st.Lang)
		if err != nil {
			return nil, fmt.Errorf("Engine.Advance: translating reply: %w", err)
		}
		out[i] = translated
	}
	return out, nil
}

func nonEmpty(msg string) []string {
	if msg == "" {
		return nil
	}
	return []string{msg}
}
