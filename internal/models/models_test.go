package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSlotDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		slot    SlotDefinition
		wantErr error
	}{
		{
			name: "valid text slot",
			slot: SlotDefinition{Name: "family_name", Type: SlotTypeText, Prompt: "Wie lautet Ihr Nachname?"},
		},
		{
			name: "valid choice slot",
			slot: SlotDefinition{Name: "registration_type", Type: SlotTypeChoice, Choices: []string{"Neuerrichtung", "Übernahme"}},
		},
		{
			name:    "missing name",
			slot:    SlotDefinition{Type: SlotTypeText},
			wantErr: ErrEmptySlotName,
		},
		{
			name:    "unknown type",
			slot:    SlotDefinition{Name: "x", Type: "number"},
			wantErr: ErrInvalidSlotType,
		},
		{
			name:    "choice slot without choices",
			slot:    SlotDefinition{Name: "x", Type: SlotTypeChoice},
			wantErr: ErrMissingChoices,
		},
		{
			name: "one_of condition without values",
			slot: SlotDefinition{
				Name: "x", Type: SlotTypeText,
				Condition: &SlotCondition{DependsOn: "y", Rule: ConditionRuleOneOf},
			},
			wantErr: ErrMissingConditionValues,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slot.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() returned unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConditionEffectiveRuleDefaultsToEquals(t *testing.T) {
	c := SlotCondition{DependsOn: "a", Value: "Ja"}
	if got := c.EffectiveRule(); got != ConditionRuleEquals {
		t.Errorf("EffectiveRule() = %q, want %q", got, ConditionRuleEquals)
	}
}

func TestIsYesNo(t *testing.T) {
	yn := SlotDefinition{Name: "b", Type: SlotTypeChoice, Choices: []string{"Ja", "Nein"}}
	if !yn.IsYesNo() {
		t.Error("Ja/Nein choice slot should be recognized as yes/no")
	}

	other := SlotDefinition{Name: "c", Type: SlotTypeChoice, Choices: []string{"Haupt", "Neben", "Sonstige"}}
	if other.IsYesNo() {
		t.Error("three-way choice slot must not be treated as yes/no")
	}
}

func TestFieldRefUnmarshalString(t *testing.T) {
	var slot SlotDefinition
	data := []byte(`{"slot_name":"company_name","slot_type":"text","field_name":"Firmenname"}`)
	if err := json.Unmarshal(data, &slot); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(slot.TargetField) != 1 || slot.TargetField[0] != "Firmenname" {
		t.Errorf("TargetField = %v, want single Firmenname", slot.TargetField)
	}

	out, err := json.Marshal(slot.TargetField)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `"Firmenname"` {
		t.Errorf("single field marshaled as %s, want plain string", out)
	}
}

func TestFieldRefUnmarshalList(t *testing.T) {
	var slot SlotDefinition
	data := []byte(`{"slot_name":"is_main","slot_type":"choice","choices":["Ja","Nein"],"field_name":["cb_yes","cb_no"]}`)
	if err := json.Unmarshal(data, &slot); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(slot.TargetField) != 2 {
		t.Fatalf("TargetField = %v, want two entries", slot.TargetField)
	}

	out, err := json.Marshal(slot.TargetField)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `["cb_yes","cb_no"]` {
		t.Errorf("field pair marshaled as %s, want array", out)
	}
}

func TestNewDialogueState(t *testing.T) {
	st := NewDialogueState("d_1")

	if st.ActiveWizard != WizardKindLanguage {
		t.Errorf("fresh state wizard = %q, want language", st.ActiveWizard)
	}
	if st.Wizard == nil || st.Wizard.Language == nil {
		t.Fatal("fresh state must carry language wizard substate")
	}
	if st.EditTargetIndex != NoIndex || st.ResumeIndex != NoIndex {
		t.Error("fresh state must have unset excursion indexes")
	}
	if st.EditActive() {
		t.Error("fresh state must not report an active edit")
	}
}

func TestResponseRecordAnswered(t *testing.T) {
	if (ResponseRecord{Value: "", Locked: true}).Answered() {
		t.Error("locked record must not count as answered")
	}
	if (ResponseRecord{Value: ""}).Answered() {
		t.Error("empty record must not count as answered")
	}
	if !(ResponseRecord{Value: "true"}).Answered() {
		t.Error("stored value must count as answered")
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := SuccessWithMessage("created", map[string]string{"session_id": "d_1"})
	if resp.Status != string(APIStatusOK) || resp.Message != "created" {
		t.Errorf("unexpected response: %+v", resp)
	}

	errResp := Error("boom")
	if errResp.Status != string(APIStatusError) || errResp.Message != "boom" {
		t.Errorf("unexpected error response: %+v", errResp)
	}
}
