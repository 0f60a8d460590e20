package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/CivicForms/FormPilot/internal/genai"
)

// Translator converts messages between German (the canonical form language)
// and the dialogue language.
type Translator interface {
	// FromGerman translates a German text into the target language.
	// Target "de", an unknown code, or empty text pass through unchanged.
	FromGerman(ctx context.Context, text, targetLang string) (string, error)
	// ToGerman translates a text in the given source language into German.
	// Source "de", an unknown code, or empty text pass through unchanged.
	ToGerman(ctx context.Context, text, sourceLang string) (string, error)
}

// NoopTranslator passes every text through unchanged. Used in tests and for
// German-only deployments.
type NoopTranslator struct{}

func (NoopTranslator) FromGerman(_ context.Context, text, _ string) (string, error) { return text, nil }
func (NoopTranslator) ToGerman(_ context.Context, text, _ string) (string, error)   { return text, nil }

// GenAITranslator translates through the language model.
type GenAITranslator struct {
	client genai.ClientInterface
}

// NewGenAITranslator creates a Translator backed by the given GenAI client.
func NewGenAITranslator(client genai.ClientInterface) *GenAITranslator {
	return &GenAITranslator{client: client}
}

const fromGermanSystemPrompt = "You are a precise translator. Translate from German into the target language.\n" +
	"- Target language (ISO 639-1): %s\n" +
	"- Keep placeholders and variables exactly as-is: {like_this}, {{like_this}}, <TAGS>, $VARS.\n" +
	"- Do not translate URLs, emails, codes, or content inside {{double braces}}.\n" +
	"- Do not translate legal/corporate terms such as GmbH, AG, UG, OHG, KG, e.K., mbH.\n" +
	"- Preserve punctuation, line breaks, and Markdown.\n" +
	"- Style: concise, polite, clear.\n" +
	"Reply with the translation only."

const toGermanSystemPrompt = "You are a precise translator. Translate into **German** from the given source language.\n" +
	"- Source language (ISO 639-1): %s\n" +
	"- Keep placeholders and variables exactly as-is: {like_this}, {{like_this}}, <TAGS>, $VARS.\n" +
	"- Do not translate URLs, emails, codes, or content inside {{double braces}}.\n" +
	"- Do not translate legal/corporate terms such as GmbH, AG, UG, OHG, KG, e.K., mbH.\n" +
	"- Preserve punctuation, line breaks, and Markdown.\n" +
	"- Style: concise, polite, clear German.\n" +
	"Reply with the translation only."

// FromGerman translates a German text into the target language.
func (t *GenAITranslator) FromGerman(ctx context.Context, text, targetLang string) (string, error) {
	tgt := strings.ToLower(targetLang)
	if tgt == "" || tgt == "de" || !Supported[tgt] || text == "" {
		return text, nil
	}
	out, err := t.client.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf(fromGermanSystemPrompt, tgt)),
		openai.UserMessage(text),
	})
	if err != nil {
		return "", fmt.Errorf("GenAITranslator.FromGerman: translation to %s failed: %w", tgt, err)
	}
	slog.Debug("GenAITranslator.FromGerman: translated message", "target", tgt, "chars", len(text))
	return strings.TrimSpace(out), nil
}

// ToGerman translates a text in the given source language into German.
func (t *GenAITranslator) ToGerman(ctx context.Context, text, sourceLang string) (string, error) {
	src := strings.ToLower(sourceLang)
	if src == "" || src == "de" || !Supported[src] || text == "" {
		return text, nil
	}
	out, err := t.client.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf(toGermanSystemPrompt, src)),
		openai.UserMessage(text),
	})
	if err != nil {
		return "", fmt.Errorf("GenAITranslator.ToGerman: translation from %s failed: %w", src, err)
	}
	slog.Debug("GenAITranslator.ToGerman: translated message", "source", src, "chars", len(text))
	return strings.TrimSpace(out), nil
}
