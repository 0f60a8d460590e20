// Package dialogue implements the form-filling conversation engine: slot
// resolution, answer processing, edit excursions, wizard sub-dialogues, and
// the per-session orchestration that ties them together.
package dialogue

import (
	"fmt"
	"log/slog"

	"github.com/CivicForms/FormPilot/internal/models"
)

// ResolveNext scans forward from the state's cursor and returns the index of
// the next slot that needs an answer, or models.NoIndex when the form is
// complete. Slots with a stored record (answered, skipped, or locked) are
// passed over. A slot whose condition is unmet gets a locked empty record and
// the scan continues.
//
// The scan never resets the cursor and is idempotent: repeated calls on
// unchanged state return the same index and write no additional records.
func ResolveNext(slots []models.SlotDefinition, st *models.DialogueState) (int, error) {
	for i := st.Cursor; i < len(slots); i++ {
		slot := &slots[i]
		if _, resolved := st.Responses[slot.Name]; resolved {
			continue
		}

		if slot.Condition == nil {
			return i, nil
		}

		src, ok := st.Responses[slot.Condition.DependsOn]
		if !ok {
			// The source slot precedes this one (enforced at load), so a
			// missing record is a schema authoring bug, not user input.
			return models.NoIndex, fmt.Errorf("%w: slot %q depends on %q",
				models.ErrConditionSourceUnanswered, slot.Name, slot.Condition.DependsOn)
		}

		if conditionMet(slot.Condition, src.Value) {
			return i, nil
		}

		st.Responses[slot.Name] = models.ResponseRecord{
			Locked:            true,
			TargetField:       slot.TargetField,
			Choices:           slot.Choices,
			CheckBoxCondition: slot.CheckBoxCondition,
		}
		slog.Debug("ResolveNext: locked slot with unmet condition", "slot", slot.Name, "dependsOn", slot.Condition.DependsOn)
	}
	return models.NoIndex, nil
}

func conditionMet(cond *models.SlotCondition, sourceValue string) bool {
	switch cond.EffectiveRule() {
	case models.ConditionRuleNotEmpty:
		return sourceValue != ""
	case models.ConditionRuleOneOf:
		for _, v := range cond.Values {
			if sourceValue == v {
				return true
			}
		}
		return false
	default:
		return sourceValue == cond.Value
	}
}
