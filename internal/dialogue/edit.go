package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/CivicForms/FormPilot/internal/genai"
	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/translate"
)

// LockPolicy controls what happens to locked dependent slots when their
// condition source is edited.
type LockPolicy int

const (
	// LockPolicyKeepLocked leaves locked records in place. An edited source
	// answer does not retroactively unlock dependents; this preserves the
	// long-standing behavior of the form flow.
	LockPolicyKeepLocked LockPolicy = iota
	// LockPolicyReevaluateOnEdit clears locked records that depend on the
	// edited slot, so the resolver re-evaluates them on resume.
	LockPolicyReevaluateOnEdit
)

// SlotDescriptor is the per-slot context handed to the edit-target
// classifier.
type SlotDescriptor struct {
	Name   string `json:"slot_name"`
	Prompt string `json:"prompt"`
	Value  string `json:"value"`
}

// EditTargetClassifier maps a correction request onto one of the answered
// slots. An empty slot name means no target could be identified.
type EditTargetClassifier interface {
	Classify(ctx context.Context, message string, answered []SlotDescriptor) (string, error)
}

// EditController detects correction requests and opens edit excursions.
type EditController struct {
	classifier EditTargetClassifier
	policy     LockPolicy
}

// NewEditController creates an EditController.
func NewEditController(classifier EditTargetClassifier, policy LockPolicy) *EditController {
	return &EditController{classifier: classifier, policy: policy}
}

// EditOutcome describes the result of an edit attempt. When Claimed is true
// the message was consumed by the controller and Messages carries the German
// reply; otherwise the message falls through to normal slot processing.
type EditOutcome struct {
	Claimed  bool
	Messages []string
}

// Maybe inspects the message for an edit trigger in the dialogue language and
// opens an excursion when the target slot can be identified. A second edit
// request while one is active is rejected, never queued.
func (e *EditController) Maybe(ctx context.Context, form *schema.Form, st *models.DialogueState, message string) (*EditOutcome, error) {
	if !translate.HasEditKeyword(st.Lang, message) {
		return &EditOutcome{}, nil
	}

	if st.EditActive() {
		slot := &form.Slots[st.EditTargetIndex]
		slog.Debug("EditController.Maybe: rejecting nested edit request", "activeSlot", slot.Name)
		return &EditOutcome{Claimed: true, Messages: []string{
			"Bitte schließen Sie zuerst die aktuelle Korrektur ab.",
			renderPrompt(slot),
		}}, nil
	}

	answered := answeredSlots(form, st)
	if len(answered) == 0 {
		return &EditOutcome{}, nil
	}

	target, err := e.classifier.Classify(ctx, message, answered)
	if err != nil {
		return nil, fmt.Errorf("EditController.Maybe: classifying edit target: %w", err)
	}
	idx := form.SlotIndex(target)
	if target == "" || idx == models.NoIndex {
		// not recognizable as a correction, let slot processing have it
		slog.Debug("EditController.Maybe: no edit target identified")
		return &EditOutcome{}, nil
	}
	// only real answers can be reopened. A locked slot has no user answer to
	// correct, and re-asking it while its condition is unmet would misroute
	// the reply; editing the condition source is the way to reach it.
	if rec, hasRecord := st.Responses[target]; !hasRecord || rec.Locked {
		return &EditOutcome{}, nil
	}

	st.ResumeIndex = st.Cursor
	st.EditTargetIndex = idx
	st.Cursor = idx
	delete(st.Responses, target)
	if e.policy == LockPolicyReevaluateOnEdit {
		unlockDependents(form, st, target)
	}

	slot := &form.Slots[idx]
	slog.Info("EditController.Maybe: edit excursion opened", "slot", slot.Name, "resumeIndex", st.ResumeIndex)
	return &EditOutcome{Claimed: true, Messages: []string{
		fmt.Sprintf("Gerne. Dann korrigieren wir die Angabe zu '%s'.", slot.Name),
		renderPrompt(slot),
	}}, nil
}

// unlockDependents removes locked records whose condition points at the
// edited slot and pulls the resume position back so the resolver revisits
// them. One level only; transitively dependent slots resolve once their own
// source is re-answered.
func unlockDependents(form *schema.Form, st *models.DialogueState, edited string) {
	for i := range form.Slots {
		slot := &form.Slots[i]
		if slot.Condition == nil || slot.Condition.DependsOn != edited {
			continue
		}
		if rec, ok := st.Responses[slot.Name]; ok && rec.Locked {
			delete(st.Responses, slot.Name)
			if i < st.ResumeIndex {
				st.ResumeIndex = i
			}
			slog.Debug("EditController.Maybe: unlocked dependent slot", "slot", slot.Name)
		}
	}
}

// answeredSlots builds the classifier catalog. Locked slots are excluded on
// purpose: they hold no user answer, so there is nothing to correct directly.
func answeredSlots(form *schema.Form, st *models.DialogueState) []SlotDescriptor {
	var answered []SlotDescriptor
	for i := range form.Slots {
		slot := &form.Slots[i]
		rec, ok := st.Responses[slot.Name]
		if !ok || rec.Locked {
			continue
		}
		answered = append(answered, SlotDescriptor{Name: slot.Name, Prompt: slot.Prompt, Value: rec.Value})
	}
	return answered
}

// GenAIEditClassifier identifies the edit target through the language model
// with a schema-constrained response.
type GenAIEditClassifier struct {
	client genai.ClientInterface
}

// NewGenAIEditClassifier creates a classifier backed by the given client.
func NewGenAIEditClassifier(client genai.ClientInterface) *GenAIEditClassifier {
	return &GenAIEditClassifier{client: client}
}

const editClassifySystemPrompt = "Der Nutzer füllt ein Formular aus und möchte eine bereits gemachte Angabe ändern. " +
	"Bestimme anhand seiner Nachricht, welche der beantworteten Angaben gemeint ist.\n" +
	"Antworte mit dem slot_name der gemeinten Angabe, oder mit \"none\", wenn keine Angabe eindeutig gemeint ist."

// Classify implements EditTargetClassifier.
func (c *GenAIEditClassifier) Classify(ctx context.Context, message string, answered []SlotDescriptor) (string, error) {
	names := make([]string, 0, len(answered)+1)
	var catalog strings.Builder
	for _, s := range answered {
		names = append(names, s.Name)
		fmt.Fprintf(&catalog, "- %s: %q (aktueller Wert: %q)\n", s.Name, s.Prompt, s.Value)
	}
	names = append(names, "none")

	targetSchema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"slot_name": map[string]interface{}{"type": "string", "enum": names},
		},
		"required": []string{"slot_name"},
	}

	var out struct {
		SlotName string `json:"slot_name"`
	}
	err := c.client.GenerateStructured(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(editClassifySystemPrompt),
		openai.UserMessage(fmt.Sprintf("Beantwortete Angaben:\n%s\nNachricht des Nutzers: %s", catalog.String(), message)),
	}, "edit_target", targetSchema, &out)
	if err != nil {
		return "", fmt.Errorf("GenAIEditClassifier.Classify: %w", err)
	}
	if out.SlotName == "none" {
		return "", nil
	}
	return out.SlotName, nil
}
