package dialogue

import (
	"context"
	"testing"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/translate"
	"github.com/CivicForms/FormPilot/internal/validate"
)

func testForm(t *testing.T) *schema.Form {
	t.Helper()
	form := &schema.Form{
		Key:   "gewerbeanmeldung",
		Title: "Gewerbeanmeldung",
		Slots: []models.SlotDefinition{
			{Name: "family_name", Type: models.SlotTypeText, Prompt: "Wie lautet Ihr Nachname?", TargetField: models.FieldRef{"Nachname"}},
			{Name: "is_takeover", Type: models.SlotTypeChoice, Prompt: "Handelt es sich um eine Übernahme?",
				Choices: []string{"Ja", "Nein"}, TargetField: models.FieldRef{"U_Ja", "U_Nein"},
				Hints: map[string]string{"true": "Hinweis: Bei einer Übernahme benötigen Sie die Angaben des Vorinhabers."}},
			{Name: "previous_owner", Type: models.SlotTypeText, Prompt: "Wer war der bisherige Inhaber?",
				TargetField: models.FieldRef{"Vorinhaber"},
				Condition:   &models.SlotCondition{DependsOn: "is_takeover", Value: "true"}},
			{Name: "registration_kind", Type: models.SlotTypeChoice, Prompt: "Art der Anmeldung?",
				Choices: []string{"Neuerrichtung", "Übernahme", "Verlegung"}, TargetField: models.FieldRef{"A_Neu", "A_Ueb", "A_Ver"}},
			{Name: "start_date", Type: models.SlotTypeText, Prompt: "Ab wann?", TargetField: models.FieldRef{"Beginn"}},
		},
	}
	return form.Bind(validate.NewBaseSet())
}

func newTestProcessor() *Processor {
	return NewProcessor(validate.LocalMatcher{}, translate.NoopTranslator{})
}

func TestProcessChoiceNumericIndexCanonicalizesYesNo(t *testing.T) {
	form := testForm(t)
	st := models.NewDialogueState("s")
	st.Cursor = 1

	outcome, err := newTestProcessor().ProcessAnswer(context.Background(), form, st, 1, "1")
	if err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if !outcome.Stored {
		t.Fatalf("expected stored outcome, got reprompt %q", outcome.Reprompt)
	}
	if got := st.Responses["is_takeover"].Value; got != "true" {
		t.Errorf("expected canonical \"true\", got %q", got)
	}
	if st.Cursor != 2 {
		t.Errorf("cursor should advance to 2, got %d", st.Cursor)
	}
	if len(outcome.Messages) != 1 {
		t.Fatalf("expected the takeover hint, got %v", outcome.Messages)
	}
}

func TestProcessChoiceLabelCanonicalizesYesNo(t *testing.T) {
	form := testForm(t)
	st := models.NewDialogueState("s")
	st.Cursor = 1

	outcome, err := newTestProcessor().ProcessAnswer(context.Background(), form, st, 1, "nein")
	if err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if !outcome.Stored {
		t.Fatalf("expected stored outcome")
	}
	if got := st.Responses["is_takeover"].Value; got != "false" {
		t.Errorf("expected canonical \"false\", got %q", got)
	}
}

func TestProcessChoiceNonBinaryKeepsLabel(t *testing.T) {
	form := testForm(t)
	st := models.NewDialogueState("s")
	st.Cursor = 3

	outcome, err := newTestProcessor().ProcessAnswer(context.Background(), form, st, 3, "2.")
	if err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if !outcome.Stored {
		t.Fatalf("expected stored outcome")
	}
	if got := st.Responses["registration_kind"].Value; got != "Übernahme" {
		t.Errorf("expected stored label, got %q", got)
	}
}

func TestProcessChoiceNoMatchReprompts(t *testing.T) {
	form := testForm(t)
	st := models.NewDialogueState("s")
	st.Cursor = 1

	outcome, err := newTestProcessor().ProcessAnswer(context.Background(), form, st, 1, "Qwertz")
	if err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if outcome.Stored {
		t.Fatal("unmatched choice must not store")
	}
	if outcome.Reprompt == "" {
		t.Fatal("expected a reprompt with the option list")
	}
	if _, ok := st.Responses["is_takeover"]; ok {
		t.Errorf("no record may be written on reprompt")
	}
	if st.Cursor != 1 {
		t.Errorf("cursor must not move on reprompt, got %d", st.Cursor)
	}
}

func TestProcessTextInvalidKeepsCursor(t *testing.T) {
	form := testForm(t)
	set := validate.NewSet("strict")
	set.Register("family_name", validate.Name)
	form.Bind(set)

	st := models.NewDialogueState("s")
	st.Cursor = 0

	outcome, err := newTestProcessor().ProcessAnswer(context.Background(), form, st, 0, "X")
	if err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if outcome.Stored {
		t.Fatal("invalid input must not store")
	}
	if outcome.Reprompt == "" {
		t.Fatal("expected the validator's message as reprompt")
	}
	if st.Cursor != 0 {
		t.Errorf("cursor must not move on invalid input, got %d", st.Cursor)
	}
}

func TestProcessTextStoresNormalized(t *testing.T) {
	form := testForm(t)
	st := models.NewDialogueState("s")
	st.Cursor = 0

	outcome, err := newTestProcessor().ProcessAnswer(context.Background(), form, st, 0, "  Muster  ")
	if err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if !outcome.Stored {
		t.Fatalf("expected stored outcome, got reprompt %q", outcome.Reprompt)
	}
	rec := st.Responses["family_name"]
	if rec.Value != "Muster" {
		t.Errorf("expected trimmed value, got %q", rec.Value)
	}
	if rec.TargetField[0] != "Nachname" {
		t.Errorf("record must carry the target field, got %+v", rec.TargetField)
	}
}

func TestProcessTextTranslatesBeforeValidation(t *testing.T) {
	form := testForm(t)
	translator := &recordingTranslator{}
	p := NewProcessor(validate.LocalMatcher{}, translator)

	st := models.NewDialogueState("s")
	st.Lang = "en"
	st.Cursor = 0

	if _, err := p.ProcessAnswer(context.Background(), form, st, 0, "Smith"); err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if translator.toGermanCalls != 1 {
		t.Errorf("expected one ToGerman call, got %d", translator.toGermanCalls)
	}

	// numeric answers skip translation
	st2 := models.NewDialogueState("s2")
	st2.Lang = "en"
	st2.Cursor = 4
	if _, err := p.ProcessAnswer(context.Background(), form, st2, 4, "42"); err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if translator.toGermanCalls != 1 {
		t.Errorf("numeric input must not be translated, calls: %d", translator.toGermanCalls)
	}
}

func TestProcessAnswerClosesEditExcursion(t *testing.T) {
	form := testForm(t)
	st := models.NewDialogueState("s")
	st.Responses["family_name"] = models.ResponseRecord{Value: "Alt"}
	st.ResumeIndex = 4
	st.EditTargetIndex = 0
	st.Cursor = 0

	outcome, err := newTestProcessor().ProcessAnswer(context.Background(), form, st, 0, "Neumann")
	if err != nil {
		t.Fatalf("ProcessAnswer failed: %v", err)
	}
	if !outcome.Stored {
		t.Fatal("expected stored outcome")
	}
	if st.Cursor != 4 {
		t.Errorf("cursor must return to resume index 4, got %d", st.Cursor)
	}
	if st.EditActive() || st.ResumeIndex != models.NoIndex {
		t.Errorf("excursion markers must be cleared: %+v", st)
	}
	if st.Responses["family_name"].Value != "Neumann" {
		t.Errorf("edited value not stored: %+v", st.Responses["family_name"])
	}
}

// recordingTranslator counts calls and passes text through.
type recordingTranslator struct {
	toGermanCalls   int
	fromGermanCalls int
}

func (r *recordingTranslator) ToGerman(_ context.Context, text, _ string) (string, error) {
	r.toGermanCalls++
	return text, nil
}

func (r *recordingTranslator) FromGerman(_ context.Context, text, _ string) (string, error) {
	r.fromGermanCalls++
	return text, nil
}
