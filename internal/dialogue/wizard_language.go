package dialogue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/translate"
)

const languageGreeting = "Willkommen! In welcher Sprache möchten Sie fortfahren?\n" +
	"Welcome! Which language would you like to use?\n" +
	"(Deutsch, English, Français, Türkçe, ...)"

const languageUnsure = "Ich bin mir unsicher. Bitte nennen Sie die gewünschte Sprache (z. B. Deutsch, English, Français, Türkçe)."

// LanguageWizard runs the language selection sub-dialogue: heuristic
// detection first, LLM detection as fallback, then a yes/no confirmation.
type LanguageWizard struct {
	state    *models.LanguageWizardState
	detector LanguageDetector
	approver ApprovalClassifier
}

// NewLanguageWizard reconstructs the wizard from its persisted substate.
func NewLanguageWizard(state *models.LanguageWizardState, detector LanguageDetector, approver ApprovalClassifier) *LanguageWizard {
	return &LanguageWizard{state: state, detector: detector, approver: approver}
}

// Step advances the wizard by one turn. userText is empty on the opening
// turn. done is true once a language is confirmed; lang then carries its
// ISO code.
func (w *LanguageWizard) Step(ctx context.Context, userText string) (msg string, done bool, lang string, err error) {
	s := w.state
	s.Turns++

	if userText == "" {
		return languageGreeting, false, "", nil
	}

	if s.AwaitingConfirmation {
		return w.stepConfirmation(ctx, userText)
	}

	if code := translate.DetectFastLanguage(userText); code != "" {
		s.LangCode = code
		s.AwaitingConfirmation = true
		slog.Debug("LanguageWizard.Step: fast detection", "code", code)
		return translate.ConfirmPrompt(code), false, "", nil
	}

	code, confirm, err := w.detector.Detect(ctx, userText)
	if err != nil {
		return "", false, "", fmt.Errorf("LanguageWizard.Step: %w", err)
	}
	if code == "" || !translate.IsSupported(code) {
		return languageUnsure, false, "", nil
	}
	s.LangCode = code
	s.AwaitingConfirmation = true
	if confirm == "" {
		confirm = translate.ConfirmPrompt(code)
	}
	slog.Debug("LanguageWizard.Step: LLM detection", "code", code)
	return confirm, false, "", nil
}

func (w *LanguageWizard) stepConfirmation(ctx context.Context, userText string) (string, bool, string, error) {
	s := w.state

	approved, ok := translate.FastApproval(userText)
	if !ok {
		var err error
		approved, ok, err = w.approver.ClassifyApproval(ctx, userText, translate.ConfirmPrompt(s.LangCode))
		if err != nil {
			return "", false, "", fmt.Errorf("LanguageWizard.Step: %w", err)
		}
	}

	switch {
	case ok && approved:
		s.AwaitingConfirmation = false
		code := s.LangCode
		slog.Info("LanguageWizard.Step: language confirmed", "code", code)
		return translate.ConfirmedMessage(code), true, code, nil
	case ok && !approved:
		s.LangCode = ""
		s.AwaitingConfirmation = false
		return "Kein Problem. Welche Sprache hätten Sie gern?", false, "", nil
	default:
		return "Bitte antworten Sie mit Ja/Nein. (Yes/No)", false, "", nil
	}
}
