package dialogue

import (
	"errors"
	"testing"

	"github.com/CivicForms/FormPilot/internal/models"
)

func takeoverSlots() []models.SlotDefinition {
	return []models.SlotDefinition{
		{Name: "family_name", Type: models.SlotTypeText, Prompt: "Wie lautet Ihr Nachname?", TargetField: models.FieldRef{"Nachname"}},
		{Name: "is_takeover", Type: models.SlotTypeChoice, Prompt: "Handelt es sich um eine Übernahme?",
			Choices: []string{"Ja", "Nein"}, TargetField: models.FieldRef{"U_Ja", "U_Nein"}},
		{Name: "previous_owner", Type: models.SlotTypeText, Prompt: "Wer war der bisherige Inhaber?",
			TargetField: models.FieldRef{"Vorinhaber"},
			Condition:   &models.SlotCondition{DependsOn: "is_takeover", Value: "true"}},
		{Name: "start_date", Type: models.SlotTypeText, Prompt: "Ab wann?", TargetField: models.FieldRef{"Beginn"}},
	}
}

func TestResolveNextSkipsAnswered(t *testing.T) {
	slots := takeoverSlots()
	st := models.NewDialogueState("s")
	st.Responses["family_name"] = models.ResponseRecord{Value: "Muster"}

	idx, err := ResolveNext(slots, st)
	if err != nil {
		t.Fatalf("ResolveNext failed: %v", err)
	}
	if idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}
}

func TestResolveNextLocksUnmetCondition(t *testing.T) {
	slots := takeoverSlots()
	st := models.NewDialogueState("s")
	st.Responses["family_name"] = models.ResponseRecord{Value: "Muster"}
	st.Responses["is_takeover"] = models.ResponseRecord{Value: "false", Choices: []string{"Ja", "Nein"}}
	st.Cursor = 2

	idx, err := ResolveNext(slots, st)
	if err != nil {
		t.Fatalf("ResolveNext failed: %v", err)
	}
	if idx != 3 {
		t.Errorf("expected condition slot skipped to index 3, got %d", idx)
	}

	rec, ok := st.Responses["previous_owner"]
	if !ok {
		t.Fatal("expected locked record for previous_owner")
	}
	if !rec.Locked || rec.Value != "" {
		t.Errorf("expected locked empty record, got %+v", rec)
	}
	if rec.TargetField[0] != "Vorinhaber" {
		t.Errorf("locked record must carry the target field, got %+v", rec.TargetField)
	}
}

func TestResolveNextMetCondition(t *testing.T) {
	slots := takeoverSlots()
	st := models.NewDialogueState("s")
	st.Responses["family_name"] = models.ResponseRecord{Value: "Muster"}
	st.Responses["is_takeover"] = models.ResponseRecord{Value: "true"}
	st.Cursor = 2

	idx, err := ResolveNext(slots, st)
	if err != nil {
		t.Fatalf("ResolveNext failed: %v", err)
	}
	if idx != 2 {
		t.Errorf("expected index 2 for met condition, got %d", idx)
	}
	if _, locked := st.Responses["previous_owner"]; locked {
		t.Errorf("met condition must not write a record")
	}
}

func TestResolveNextIdempotent(t *testing.T) {
	slots := takeoverSlots()
	st := models.NewDialogueState("s")
	st.Responses["family_name"] = models.ResponseRecord{Value: "Muster"}
	st.Responses["is_takeover"] = models.ResponseRecord{Value: "false"}
	st.Cursor = 2

	first, err := ResolveNext(slots, st)
	if err != nil {
		t.Fatalf("ResolveNext failed: %v", err)
	}
	records := len(st.Responses)

	second, err := ResolveNext(slots, st)
	if err != nil {
		t.Fatalf("ResolveNext failed: %v", err)
	}
	if first != second {
		t.Errorf("resolution not idempotent: %d then %d", first, second)
	}
	if len(st.Responses) != records {
		t.Errorf("repeated resolution wrote records: %d -> %d", records, len(st.Responses))
	}
}

func TestResolveNextMissingConditionSource(t *testing.T) {
	slots := takeoverSlots()
	st := models.NewDialogueState("s")
	// jump straight to the conditional slot without its source record
	st.Cursor = 2

	_, err := ResolveNext(slots, st)
	if !errors.Is(err, models.ErrConditionSourceUnanswered) {
		t.Fatalf("expected ErrConditionSourceUnanswered, got %v", err)
	}
}

func TestResolveNextComplete(t *testing.T) {
	slots := takeoverSlots()
	st := models.NewDialogueState("s")
	for _, s := range slots {
		st.Responses[s.Name] = models.ResponseRecord{Value: "x"}
	}
	st.Cursor = len(slots)

	idx, err := ResolveNext(slots, st)
	if err != nil {
		t.Fatalf("ResolveNext failed: %v", err)
	}
	if idx != models.NoIndex {
		t.Errorf("expected NoIndex for complete form, got %d", idx)
	}
}

func TestResolveNextOneOfRule(t *testing.T) {
	slots := []models.SlotDefinition{
		{Name: "legal_type", Type: models.SlotTypeChoice, Prompt: "Rechtsform?", Choices: []string{"GmbH", "UG", "Einzelunternehmen"}},
		{Name: "commercial_register_number", Type: models.SlotTypeText, Prompt: "Registernummer?",
			Condition: &models.SlotCondition{DependsOn: "legal_type", Rule: models.ConditionRuleOneOf, Values: []string{"GmbH", "UG"}}},
	}
	st := models.NewDialogueState("s")
	st.Responses["legal_type"] = models.ResponseRecord{Value: "Einzelunternehmen"}
	st.Cursor = 1

	idx, err := ResolveNext(slots, st)
	if err != nil {
		t.Fatalf("ResolveNext failed: %v", err)
	}
	if idx != models.NoIndex {
		t.Errorf("expected register slot locked and form complete, got %d", idx)
	}
	if rec := st.Responses["commercial_register_number"]; !rec.Locked {
		t.Errorf("expected locked record, got %+v", rec)
	}
}
