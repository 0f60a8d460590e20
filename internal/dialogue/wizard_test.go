package dialogue

import (
	"context"
	"strings"
	"testing"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
)

func TestLanguageWizardFastPath(t *testing.T) {
	state := &models.LanguageWizardState{}
	w := NewLanguageWizard(state, stubDetector{}, stubApprover{})

	msg, done, _, err := w.Step(context.Background(), "")
	if err != nil || done {
		t.Fatalf("opening turn: msg=%q done=%v err=%v", msg, done, err)
	}
	if !strings.Contains(msg, "Willkommen") {
		t.Fatalf("expected the greeting, got %q", msg)
	}

	msg, done, _, err = w.Step(context.Background(), "english please")
	if err != nil || done {
		t.Fatalf("detection turn failed: %v", err)
	}
	if !state.AwaitingConfirmation || state.LangCode != "en" {
		t.Fatalf("fast detection failed: %+v", state)
	}
	if !strings.Contains(msg, "English") {
		t.Fatalf("confirmation must be in the detected language, got %q", msg)
	}

	msg, done, lang, err := w.Step(context.Background(), "yes")
	if err != nil {
		t.Fatalf("confirmation turn failed: %v", err)
	}
	if !done || lang != "en" {
		t.Fatalf("expected confirmed en, got done=%v lang=%q", done, lang)
	}
	if !strings.Contains(msg, "translated to German") {
		t.Fatalf("non-German confirmation must carry the translation warning, got %q", msg)
	}
}

func TestLanguageWizardRejectionRestarts(t *testing.T) {
	state := &models.LanguageWizardState{LangCode: "en", AwaitingConfirmation: true}
	w := NewLanguageWizard(state, stubDetector{}, stubApprover{})

	_, done, _, err := w.Step(context.Background(), "no")
	if err != nil || done {
		t.Fatalf("rejection must not finish the wizard: %v", err)
	}
	if state.AwaitingConfirmation || state.LangCode != "" {
		t.Fatalf("rejection must reset the detection: %+v", state)
	}
}

func TestLanguageWizardLLMFallback(t *testing.T) {
	state := &models.LanguageWizardState{}
	w := NewLanguageWizard(state, stubDetector{code: "pl"}, stubApprover{})

	msg, done, _, err := w.Step(context.Background(), "Dzień dobry, poproszę po polsku")
	if err != nil || done {
		t.Fatalf("detection turn failed: %v", err)
	}
	if state.LangCode != "pl" || !state.AwaitingConfirmation {
		t.Fatalf("LLM detection not applied: %+v", state)
	}
	if msg == "" {
		t.Fatal("expected a confirmation prompt")
	}
}

func TestLanguageWizardUnsupportedCode(t *testing.T) {
	state := &models.LanguageWizardState{}
	w := NewLanguageWizard(state, stubDetector{code: "xx"}, stubApprover{})

	msg, done, _, err := w.Step(context.Background(), "klingon")
	if err != nil || done {
		t.Fatalf("unsupported detection turn failed: %v", err)
	}
	if state.AwaitingConfirmation {
		t.Fatalf("unsupported code must not enter confirmation: %+v", state)
	}
	if !strings.Contains(msg, "unsicher") {
		t.Fatalf("expected the unsure message, got %q", msg)
	}
}

func twoFormRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	second := &schema.Form{
		Key:   "kontakt",
		Title: "Kontaktformular",
		Slots: []models.SlotDefinition{{Name: "message", Type: models.SlotTypeText, Prompt: "Ihre Nachricht?"}},
	}
	return schema.NewRegistry(testForm(t), second)
}

func TestFormSelectionWizardPicksByNumber(t *testing.T) {
	forms := twoFormRegistry(t)
	state := &models.FormSelectionWizardState{}
	localizer := &stubLocalizer{}
	w := NewFormSelectionWizard(state, forms, "de", localizer)

	list, done, _, err := w.Step(context.Background(), "")
	if err != nil || done {
		t.Fatalf("list turn failed: %v", err)
	}
	if !strings.Contains(list, "1. ") || !strings.Contains(list, "Kontaktformular") {
		t.Fatalf("expected the numbered list, got %q", list)
	}
	if localizer.calls != 0 {
		t.Errorf("German list must not call the localizer")
	}

	// keys are sorted; "gewerbeanmeldung" precedes "kontakt"
	_, done, _, err = w.Step(context.Background(), "2")
	if err != nil || !done {
		t.Fatalf("selection turn failed: done=%v err=%v", done, err)
	}
	if w.Selected() != "kontakt" {
		t.Errorf("expected kontakt, got %q", w.Selected())
	}
}

func TestFormSelectionWizardPicksByTitle(t *testing.T) {
	forms := twoFormRegistry(t)
	state := &models.FormSelectionWizardState{Presented: true}
	w := NewFormSelectionWizard(state, forms, "de", &stubLocalizer{})

	_, done, _, err := w.Step(context.Background(), "gewerbeanmeldung")
	if err != nil || !done {
		t.Fatalf("title selection failed: done=%v err=%v", done, err)
	}
	if w.Selected() != "gewerbeanmeldung" {
		t.Errorf("expected gewerbeanmeldung, got %q", w.Selected())
	}
}

func TestFormSelectionWizardNoMatchRepeatsList(t *testing.T) {
	forms := twoFormRegistry(t)
	state := &models.FormSelectionWizardState{Presented: true}
	w := NewFormSelectionWizard(state, forms, "de", &stubLocalizer{})

	msg, done, _, err := w.Step(context.Background(), "Steuererklärung")
	if err != nil || done {
		t.Fatalf("no-match turn failed: %v", err)
	}
	if !strings.Contains(msg, "nicht zuordnen") || !strings.Contains(msg, "1. ") {
		t.Fatalf("expected rejection plus the repeated list, got %q", msg)
	}
}

func TestFormSelectionWizardLocalizesList(t *testing.T) {
	forms := twoFormRegistry(t)
	state := &models.FormSelectionWizardState{}
	localizer := &stubLocalizer{}
	w := NewFormSelectionWizard(state, forms, "en", localizer)

	if _, _, _, err := w.Step(context.Background(), ""); err != nil {
		t.Fatalf("list turn failed: %v", err)
	}
	if localizer.calls != 1 {
		t.Errorf("expected one localizer call for header plus titles, got %d", localizer.calls)
	}
}

func TestRegisterExcerptWizardDeclineFinishesWithoutData(t *testing.T) {
	state := &models.RegisterExcerptWizardState{}
	w := NewRegisterExcerptWizard(state)

	msg, done, _, err := w.Step(context.Background(), "")
	if err != nil || done {
		t.Fatalf("ask turn failed: %v", err)
	}
	if !strings.Contains(msg, "Handelsregisterauszug") {
		t.Fatalf("expected the document question, got %q", msg)
	}

	_, done, _, err = w.Step(context.Background(), "Nein")
	if err != nil || !done {
		t.Fatalf("decline must finish the wizard: done=%v err=%v", done, err)
	}
	if state.Extracted != nil {
		t.Errorf("declined wizard must not carry data")
	}
}

func TestRegisterExcerptWizardSkipDuringUpload(t *testing.T) {
	state := &models.RegisterExcerptWizardState{Phase: models.PrefillPhaseAwaitingUpload}
	w := NewRegisterExcerptWizard(state)

	_, done, _, err := w.Step(context.Background(), "weiter")
	if err != nil || !done {
		t.Fatalf("skip word must finish the wizard: done=%v err=%v", done, err)
	}
}

func TestRegisterExcerptWizardReviewAndBranchAddress(t *testing.T) {
	state := &models.RegisterExcerptWizardState{
		Phase: models.PrefillPhaseReview,
		Extracted: &models.RegisterExcerpt{
			CompanyName: "Muster GmbH",
			Street:      "Hauptstraße", HouseNumber: "1", PostalCode: "80331", City: "München",
			CEOs: []models.PersonRef{{FamilyName: "Muster", GivenName: "Max", BirthDate: "1980-04-02"}},
		},
	}
	w := NewRegisterExcerptWizard(state)

	review := w.ReviewMessage()
	if !strings.Contains(review, "Muster GmbH") || !strings.Contains(review, "02.04.1980") {
		t.Fatalf("review must summarize the extraction with German dates, got %q", review)
	}

	msg, done, _, err := w.Step(context.Background(), "Ja")
	if err != nil || done {
		t.Fatalf("review approval must move to the branch question: %v", err)
	}
	if !strings.Contains(msg, "Betriebsstätte") {
		t.Fatalf("expected the branch-address question, got %q", msg)
	}

	_, done, _, err = w.Step(context.Background(), "Nein")
	if err != nil || !done {
		t.Fatalf("branch answer must finish the wizard: done=%v err=%v", done, err)
	}
	if w.BranchAddressDiffers() {
		t.Errorf("Nein means the address carries over")
	}
}

func TestApplyRegisterExcerptPrefillsDefinedSlots(t *testing.T) {
	form := &schema.Form{
		Key: "gewerbeanmeldung",
		Slots: []models.SlotDefinition{
			{Name: "company_name", Type: models.SlotTypeText, TargetField: models.FieldRef{"Firma"}},
			{Name: "family_name", Type: models.SlotTypeText, TargetField: models.FieldRef{"Nachname"}},
			{Name: "representative_address", Type: models.SlotTypeText, TargetField: models.FieldRef{"Anschrift"}},
		},
	}
	st := models.NewDialogueState("s")
	ex := &models.RegisterExcerpt{
		Authority:   "Amtsgericht München",
		CompanyName: "Muster GmbH",
		Street:      "Hauptstraße", HouseNumber: "1", PostalCode: "80331", City: "München",
		CEOs: []models.PersonRef{{FamilyName: "Muster", GivenName: "Max", BirthDate: "1980-04-02"}},
	}

	applyRegisterExcerpt(form, st, ex, false)

	if st.Responses["company_name"].Value != "Muster GmbH" {
		t.Errorf("company name not prefilled: %+v", st.Responses["company_name"])
	}
	if st.Responses["family_name"].Value != "Muster" {
		t.Errorf("first CEO not prefilled: %+v", st.Responses["family_name"])
	}
	if got := st.Responses["representative_address"].Value; got != "Hauptstraße, 1, 80331, München" {
		t.Errorf("address not normalized: %q", got)
	}
	// register_authority is not defined on this form and must not appear
	if _, ok := st.Responses["register_authority"]; ok {
		t.Errorf("undefined slot must not be prefilled")
	}
}

func TestApplyRegisterExcerptBranchAddressDiffers(t *testing.T) {
	form := &schema.Form{
		Key: "gewerbeanmeldung",
		Slots: []models.SlotDefinition{
			{Name: "representative_address", Type: models.SlotTypeText, TargetField: models.FieldRef{"Anschrift"}},
		},
	}
	st := models.NewDialogueState("s")
	ex := &models.RegisterExcerpt{Street: "Hauptstraße", HouseNumber: "1", PostalCode: "80331", City: "München"}

	applyRegisterExcerpt(form, st, ex, true)
	if _, ok := st.Responses["representative_address"]; ok {
		t.Errorf("differing branch address must not prefill the excerpt address")
	}
}

func TestIDCardWizardReviewApproval(t *testing.T) {
	state := &models.IDCardWizardState{
		Phase:     models.PrefillPhaseReview,
		Extracted: &models.IDCardData{FamilyName: "Muster", GivenName: "Max", BirthDate: "1980-04-02"},
	}
	w := NewIDCardWizard(state)

	if review := w.ReviewMessage(); !strings.Contains(review, "Muster") {
		t.Fatalf("review must show the extracted name, got %q", review)
	}

	_, done, _, err := w.Step(context.Background(), "Ja")
	if err != nil || !done {
		t.Fatalf("approved review must finish the wizard: done=%v err=%v", done, err)
	}
}
