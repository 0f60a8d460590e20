package validate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/sahilm/fuzzy"

	"github.com/CivicForms/FormPilot/internal/genai"
)

// DefaultMatchCutoff is the minimum coverage of a choice label a fuzzy match
// must reach to be accepted.
const DefaultMatchCutoff = 0.75

// ChoiceMatcher maps a raw user answer onto one of a slot's choice labels.
// ok is false when no confident match exists; an error means the matcher
// itself failed and the answer must be retried.
type ChoiceMatcher interface {
	Match(ctx context.Context, input string, choices []string) (choice string, ok bool, err error)
}

// LocalMatcher resolves answers without external calls: 1-based numeric
// index, exact label match, then fuzzy match against the labels.
type LocalMatcher struct {
	// Cutoff overrides DefaultMatchCutoff when non-zero.
	Cutoff float64
}

// Match implements ChoiceMatcher.
func (m LocalMatcher) Match(_ context.Context, input string, choices []string) (string, bool, error) {
	text := strings.TrimSpace(input)
	// accept "1." as well as "1"
	text = strings.TrimSuffix(text, ".")
	if text == "" {
		return "", false, nil
	}

	if idx, err := strconv.Atoi(text); err == nil {
		if idx >= 1 && idx <= len(choices) {
			return choices[idx-1], true, nil
		}
		return "", false, nil
	}

	for _, c := range choices {
		if strings.EqualFold(text, c) {
			return c, true, nil
		}
	}

	cutoff := m.Cutoff
	if cutoff == 0 {
		cutoff = DefaultMatchCutoff
	}
	lowered := make([]string, len(choices))
	for i, c := range choices {
		lowered[i] = strings.ToLower(c)
	}
	matches := fuzzy.Find(strings.ToLower(text), lowered)
	if len(matches) == 0 {
		return "", false, nil
	}
	best := matches[0]
	coverage := float64(len([]rune(text))) / float64(len([]rune(best.Str)))
	if coverage < cutoff {
		slog.Debug("LocalMatcher.Match: fuzzy match below cutoff", "coverage", coverage, "cutoff", cutoff)
		return "", false, nil
	}
	return choices[best.Index], true, nil
}

const llmMatchPrompt = "Der Nutzer hat auf eine Auswahlfrage geantwortet. " +
	"Ordne die Antwort einer der nummerierten Optionen zu.\n\n" +
	"Optionen:\n%s\n" +
	"Antwort des Nutzers: %s\n\n" +
	"Gib ausschließlich die Nummer der passenden Option zurück, oder NONE, wenn keine Option eindeutig passt."

// LLMMatcher asks the language model to map a free-form answer onto a choice.
// Used behind LocalMatcher for paraphrased answers.
type LLMMatcher struct {
	Client genai.ClientInterface
}

// Match implements ChoiceMatcher.
func (m LLMMatcher) Match(ctx context.Context, input string, choices []string) (string, bool, error) {
	var options strings.Builder
	for i, c := range choices {
		fmt.Fprintf(&options, "%d. %s\n", i+1, c)
	}
	response, err := m.Client.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(fmt.Sprintf(llmMatchPrompt, options.String(), input)),
	})
	if err != nil {
		return "", false, fmt.Errorf("LLMMatcher.Match: classification failed: %w", err)
	}

	answer := strings.TrimSpace(response)
	answer = strings.TrimSuffix(answer, ".")
	if strings.EqualFold(answer, "NONE") {
		return "", false, nil
	}
	idx, err := strconv.Atoi(answer)
	if err != nil || idx < 1 || idx > len(choices) {
		slog.Debug("LLMMatcher.Match: unusable classification", "responseLength", len(response))
		return "", false, nil
	}
	return choices[idx-1], true, nil
}

// MatcherChain tries each matcher in order until one is confident.
type MatcherChain []ChoiceMatcher

// Match implements ChoiceMatcher.
func (c MatcherChain) Match(ctx context.Context, input string, choices []string) (string, bool, error) {
	for _, m := range c {
		choice, ok, err := m.Match(ctx, input, choices)
		if err != nil {
			return "", false, err
		}
		if ok {
			return choice, true, nil
		}
	}
	return "", false, nil
}

// NewDefaultMatcher builds the standard chain: local index/exact/fuzzy
// matching, then the LLM fallback when a client is available.
func NewDefaultMatcher(client genai.ClientInterface) ChoiceMatcher {
	chain := MatcherChain{LocalMatcher{}}
	if client != nil {
		chain = append(chain, LLMMatcher{Client: client})
	}
	return chain
}
