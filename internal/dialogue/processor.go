package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/translate"
	"github.com/CivicForms/FormPilot/internal/validate"
)

// Processor turns a raw user answer into a stored ResponseRecord. All
// external calls (choice matching, LLM validation, translation) happen
// before any state mutation, so an error leaves the dialogue untouched.
type Processor struct {
	matcher    validate.ChoiceMatcher
	translator translate.Translator
}

// NewProcessor creates a Processor with the given matcher and translator.
func NewProcessor(matcher validate.ChoiceMatcher, translator translate.Translator) *Processor {
	return &Processor{matcher: matcher, translator: translator}
}

// ProcessOutcome describes one processed answer. When Stored is false,
// Reprompt carries the German retry message and the state was not modified.
// Messages carries informational asides and hints, in German.
type ProcessOutcome struct {
	Stored   bool
	Messages []string
	Reprompt string
}

// ProcessAnswer validates and stores the answer for the slot at idx. On
// success the cursor advances (or, when this answer closes an edit
// excursion, returns to the saved resume position).
func (p *Processor) ProcessAnswer(ctx context.Context, form *schema.Form, st *models.DialogueState, idx int, raw string) (*ProcessOutcome, error) {
	slot := &form.Slots[idx]
	switch slot.Type {
	case models.SlotTypeChoice:
		return p.processChoice(ctx, form, st, idx, slot, raw)
	default:
		return p.processText(ctx, form, st, idx, slot, raw)
	}
}

func (p *Processor) processChoice(ctx context.Context, form *schema.Form, st *models.DialogueState, idx int, slot *models.SlotDefinition, raw string) (*ProcessOutcome, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return &ProcessOutcome{Reprompt: renderChoiceReprompt(slot)}, nil
	}

	choice, ok, err := p.matcher.Match(ctx, input, slot.Choices)
	if err != nil {
		return nil, fmt.Errorf("Processor.ProcessAnswer: matching %q: %w", slot.Name, err)
	}
	if !ok {
		slog.Debug("Processor.ProcessAnswer: no confident choice match", "slot", slot.Name)
		return &ProcessOutcome{Reprompt: renderChoiceReprompt(slot)}, nil
	}

	value := choice
	if slot.IsYesNo() {
		if choice == slot.Choices[0] {
			value = "true"
		} else {
			value = "false"
		}
	}

	outcome := &ProcessOutcome{Stored: true}
	p.store(form, st, idx, slot, models.ResponseRecord{
		Value:             value,
		TargetField:       slot.TargetField,
		Choices:           slot.Choices,
		CheckBoxCondition: slot.CheckBoxCondition,
	})
	outcome.Messages = appendHint(outcome.Messages, slot, value, choice)
	return outcome, nil
}

func (p *Processor) processText(ctx context.Context, form *schema.Form, st *models.DialogueState, idx int, slot *models.SlotDefinition, raw string) (*ProcessOutcome, error) {
	input := strings.TrimSpace(raw)

	// free-text answers are carried in German; index-style or empty input
	// never goes through the translator
	if input != "" && !isNumericOnly(input) {
		translated, err := p.translator.ToGerman(ctx, input, st.Lang)
		if err != nil {
			return nil, fmt.Errorf("Processor.ProcessAnswer: translating answer for %q: %w", slot.Name, err)
		}
		input = translated
	}

	result, err := form.Validators().ForSlot(slot.Name)(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("Processor.ProcessAnswer: validating %q: %w", slot.Name, err)
	}
	if !result.Valid {
		return &ProcessOutcome{Reprompt: result.Message}, nil
	}

	outcome := &ProcessOutcome{Stored: true}
	if result.Message != "" {
		outcome.Messages = append(outcome.Messages, result.Message)
	}
	p.store(form, st, idx, slot, models.ResponseRecord{
		Value:             result.Normalized,
		TargetField:       slot.TargetField,
		Choices:           slot.Choices,
		CheckBoxCondition: slot.CheckBoxCondition,
	})
	outcome.Messages = appendHint(outcome.Messages, slot, result.Normalized, input)
	return outcome, nil
}

// store writes the record and moves the cursor: forward for a normal answer,
// back to the resume position when this answer closes an edit excursion.
func (p *Processor) store(form *schema.Form, st *models.DialogueState, idx int, slot *models.SlotDefinition, rec models.ResponseRecord) {
	st.Responses[slot.Name] = rec

	if st.EditActive() && idx == st.EditTargetIndex {
		st.Cursor = st.ResumeIndex
		st.EditTargetIndex = models.NoIndex
		st.ResumeIndex = models.NoIndex
		slog.Debug("Processor.ProcessAnswer: edit excursion closed", "slot", slot.Name, "resumeCursor", st.Cursor)
		return
	}
	st.Cursor = idx + 1
}

// appendHint surfaces a schema hint keyed by the stored value or the
// original choice label.
func appendHint(messages []string, slot *models.SlotDefinition, value, label string) []string {
	if hint, ok := slot.Hints[value]; ok {
		return append(messages, hint)
	}
	if hint, ok := slot.Hints[label]; ok {
		return append(messages, hint)
	}
	return messages
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
