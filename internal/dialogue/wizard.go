package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/CivicForms/FormPilot/internal/genai"
)

// LanguageDetector identifies the language of a free-form message. It
// returns the ISO 639-1 code and a confirmation question in that language,
// or an empty code when unsure.
type LanguageDetector interface {
	Detect(ctx context.Context, message string) (code string, confirmPrompt string, err error)
}

// ApprovalClassifier decides whether a message approves or rejects the
// preceding question. ok is false when the message is neither.
type ApprovalClassifier interface {
	ClassifyApproval(ctx context.Context, message, lastPrompt string) (approved bool, ok bool, err error)
}

// FormListLocalizer translates form titles for the selection list. German
// dialogues never reach it.
type FormListLocalizer interface {
	LocalizeTitles(ctx context.Context, titles []string, lang string) ([]string, error)
}

// GenAIWizardBackend implements the wizard LLM capabilities on one client.
type GenAIWizardBackend struct {
	client genai.ClientInterface
}

// NewGenAIWizardBackend creates the backend for the given client.
func NewGenAIWizardBackend(client genai.ClientInterface) *GenAIWizardBackend {
	return &GenAIWizardBackend{client: client}
}

var detectSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"lang_code": map[string]interface{}{
			"type":        "string",
			"description": "ISO 639-1 code of the user's language, or \"unknown\"",
		},
		"confirm_prompt": map[string]interface{}{
			"type":        "string",
			"description": "A short question in the detected language asking whether to continue in it, ending with the local yes/no words in parentheses",
		},
	},
	"required": []string{"lang_code", "confirm_prompt"},
}

// Detect implements LanguageDetector.
func (b *GenAIWizardBackend) Detect(ctx context.Context, message string) (string, string, error) {
	var out struct {
		LangCode      string `json:"lang_code"`
		ConfirmPrompt string `json:"confirm_prompt"`
	}
	err := b.client.GenerateStructured(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Detect the language the user wants to communicate in, from their message. " +
			"Consider both the language the message is written in and any explicitly named language."),
		openai.UserMessage(message),
	}, "language_detection", detectSchema, &out)
	if err != nil {
		return "", "", fmt.Errorf("GenAIWizardBackend.Detect: %w", err)
	}
	code := strings.ToLower(strings.TrimSpace(out.LangCode))
	if code == "unknown" || code == "" {
		return "", "", nil
	}
	return code, out.ConfirmPrompt, nil
}

// ClassifyApproval implements ApprovalClassifier.
func (b *GenAIWizardBackend) ClassifyApproval(ctx context.Context, message, lastPrompt string) (bool, bool, error) {
	response, err := b.client.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Classify if the user message is a YES/approval or NO/rejection of the preceding question. " +
			"Reply with exactly one word: YES, NO, or UNCLEAR."),
		openai.UserMessage(fmt.Sprintf("Preceding question: %s\nUser message: %s", lastPrompt, message)),
	})
	if err != nil {
		return false, false, fmt.Errorf("GenAIWizardBackend.ClassifyApproval: %w", err)
	}
	switch strings.ToUpper(strings.TrimSpace(response)) {
	case "YES":
		return true, true, nil
	case "NO":
		return false, true, nil
	default:
		return false, false, nil
	}
}

var localizeSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"titles": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	},
	"required": []string{"titles"},
}

// LocalizeTitles implements FormListLocalizer.
func (b *GenAIWizardBackend) LocalizeTitles(ctx context.Context, titles []string, lang string) ([]string, error) {
	var out struct {
		Titles []string `json:"titles"`
	}
	err := b.client.GenerateStructured(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf("Translate the following German form titles into the language with ISO 639-1 code %q. "+
			"Keep official German form names in parentheses after the translation. Return the same number of titles in the same order.", lang)),
		openai.UserMessage(strings.Join(titles, "\n")),
	}, "form_titles", localizeSchema, &out)
	if err != nil {
		return nil, fmt.Errorf("GenAIWizardBackend.LocalizeTitles: %w", err)
	}
	if len(out.Titles) != len(titles) {
		// length drift from the model, fall back to the originals
		return titles, nil
	}
	return out.Titles, nil
}
