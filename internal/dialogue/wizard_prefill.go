package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/translate"
)

// skipWords lets the user leave a prefill wizard without a document.
var skipWords = map[string]bool{"weiter": true, "skip": true, "continue": true, "ohne": true}

// RegisterExcerptWizard offers to prefill the form from a commercial-register
// excerpt. The document itself arrives out of band (upload endpoint); the
// wizard owns the surrounding conversation.
type RegisterExcerptWizard struct {
	state *models.RegisterExcerptWizardState
	// branchDiffers holds the outcome of the branch-address question. It is
	// derived per turn, not persisted: the applied records carry the effect.
	branchDiffers bool
}

// NewRegisterExcerptWizard reconstructs the wizard from its substate.
func NewRegisterExcerptWizard(state *models.RegisterExcerptWizardState) *RegisterExcerptWizard {
	if state.Phase == "" {
		state.Phase = models.PrefillPhaseAskDocument
	}
	return &RegisterExcerptWizard{state: state}
}

// BranchAddressDiffers reports the outcome of the branch-address question.
// Only meaningful after the wizard finished.
func (w *RegisterExcerptWizard) BranchAddressDiffers() bool { return w.branchDiffers }

// Step advances the wizard by one turn. done is true when the wizard is
// finished, with or without extracted data.
func (w *RegisterExcerptWizard) Step(ctx context.Context, userText string) (string, bool, string, error) {
	s := w.state
	switch s.Phase {
	case models.PrefillPhaseAskDocument:
		if userText == "" {
			return "Liegt Ihnen ein aktueller Handelsregisterauszug vor? Damit können wir viele Angaben automatisch übernehmen. (Ja/Nein)", false, "", nil
		}
		approved, ok := translate.FastApproval(userText)
		if !ok {
			return "Bitte antworten Sie mit Ja oder Nein.", false, "", nil
		}
		if !approved {
			s.Phase = models.PrefillPhaseDone
			return "", true, "", nil
		}
		s.Phase = models.PrefillPhaseAwaitingUpload
		return "Bitte laden Sie den Handelsregisterauszug hoch (Foto oder PDF). Schreiben Sie 'weiter', um ohne Dokument fortzufahren.", false, "", nil

	case models.PrefillPhaseAwaitingUpload:
		if skipWords[strings.ToLower(strings.TrimSpace(userText))] {
			s.Phase = models.PrefillPhaseDone
			s.Extracted = nil
			return "", true, "", nil
		}
		return "Bitte laden Sie zuerst das Dokument hoch, oder schreiben Sie 'weiter', um ohne Dokument fortzufahren.", false, "", nil

	case models.PrefillPhaseReview:
		approved, ok := translate.FastApproval(userText)
		if !ok {
			return "Bitte antworten Sie mit Ja oder Nein.", false, "", nil
		}
		if !approved {
			s.Phase = models.PrefillPhaseAwaitingUpload
			s.Extracted = nil
			return "In Ordnung. Bitte laden Sie ein besser lesbares Dokument hoch, oder schreiben Sie 'weiter'.", false, "", nil
		}
		s.Phase = models.PrefillPhaseBranchAddress
		return "Weicht die Anschrift der Betriebsstätte von der Anschrift der Hauptniederlassung ab? (Ja/Nein)", false, "", nil

	case models.PrefillPhaseBranchAddress:
		differs, ok := translate.FastApproval(userText)
		if !ok {
			return "Bitte antworten Sie mit Ja oder Nein.", false, "", nil
		}
		w.branchDiffers = differs
		s.Phase = models.PrefillPhaseDone
		return "", true, "", nil

	default:
		return "", true, "", nil
	}
}

// ReviewMessage summarizes the extracted excerpt for confirmation. Called by
// the engine after document ingestion moved the wizard into review.
func (w *RegisterExcerptWizard) ReviewMessage() string {
	ex := w.state.Extracted
	if ex == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Ich habe folgende Angaben aus dem Handelsregisterauszug gelesen:\n")
	writeIf(&b, "Registergericht", ex.Authority)
	writeIf(&b, "Registernummer", ex.HRANumber)
	writeIf(&b, "Firmenname", ex.CompanyName)
	writeIf(&b, "Rechtsform", ex.LegalType)
	writeIf(&b, "Tätigkeit", ex.Activity)
	if ex.Street != "" {
		writeIf(&b, "Anschrift", fmt.Sprintf("%s %s, %s %s", ex.Street, ex.HouseNumber, ex.PostalCode, ex.City))
	}
	for i, ceo := range ex.CEOs {
		writeIf(&b, fmt.Sprintf("Vertretungsberechtigte Person %d", i+1),
			strings.TrimSpace(fmt.Sprintf("%s %s, geb. %s", ceo.GivenName, ceo.FamilyName, formatGermanDate(ceo.BirthDate))))
	}
	b.WriteString("\nStimmen diese Angaben? (Ja/Nein)")
	return b.String()
}

// IDCardWizard offers to prefill the personal slots from an identity card.
type IDCardWizard struct {
	state *models.IDCardWizardState
}

// NewIDCardWizard reconstructs the wizard from its substate.
func NewIDCardWizard(state *models.IDCardWizardState) *IDCardWizard {
	if state.Phase == "" {
		state.Phase = models.PrefillPhaseAskDocument
	}
	return &IDCardWizard{state: state}
}

// Step advances the wizard by one turn.
func (w *IDCardWizard) Step(ctx context.Context, userText string) (string, bool, string, error) {
	s := w.state
	switch s.Phase {
	case models.PrefillPhaseAskDocument:
		if userText == "" {
			return "Möchten Sie Ihre persönlichen Angaben aus Ihrem Ausweis übernehmen? (Ja/Nein)", false, "", nil
		}
		approved, ok := translate.FastApproval(userText)
		if !ok {
			return "Bitte antworten Sie mit Ja oder Nein.", false, "", nil
		}
		if !approved {
			s.Phase = models.PrefillPhaseDone
			return "", true, "", nil
		}
		s.Phase = models.PrefillPhaseAwaitingUpload
		return "Bitte laden Sie ein Foto Ihres Ausweises hoch. Schreiben Sie 'weiter', um ohne Dokument fortzufahren.", false, "", nil

	case models.PrefillPhaseAwaitingUpload:
		if skipWords[strings.ToLower(strings.TrimSpace(userText))] {
			s.Phase = models.PrefillPhaseDone
			s.Extracted = nil
			return "", true, "", nil
		}
		return "Bitte laden Sie zuerst das Dokument hoch, oder schreiben Sie 'weiter', um ohne Dokument fortzufahren.", false, "", nil

	case models.PrefillPhaseReview:
		approved, ok := translate.FastApproval(userText)
		if !ok {
			return "Bitte antworten Sie mit Ja oder Nein.", false, "", nil
		}
		if !approved {
			s.Phase = models.PrefillPhaseAwaitingUpload
			s.Extracted = nil
			return "In Ordnung. Bitte laden Sie ein besser lesbares Foto hoch, oder schreiben Sie 'weiter'.", false, "", nil
		}
		s.Phase = models.PrefillPhaseDone
		return "", true, "", nil

	default:
		return "", true, "", nil
	}
}

// ReviewMessage summarizes the extracted card data for confirmation.
func (w *IDCardWizard) ReviewMessage() string {
	card := w.state.Extracted
	if card == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Ich habe folgende Angaben aus dem Ausweis gelesen:\n")
	writeIf(&b, "Nachname", card.FamilyName)
	writeIf(&b, "Vorname", card.GivenName)
	writeIf(&b, "Geburtsdatum", formatGermanDate(card.BirthDate))
	writeIf(&b, "Staatsangehörigkeit", card.Nationality)
	if card.Street != "" {
		writeIf(&b, "Anschrift", fmt.Sprintf("%s %s, %s %s", card.Street, card.HouseNumber, card.PostalCode, card.City))
	}
	b.WriteString("\nStimmen diese Angaben? (Ja/Nein)")
	return b.String()
}

func writeIf(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) != "" {
		fmt.Fprintf(b, "- %s: %s\n", label, value)
	}
}

// formatGermanDate converts YYYY-MM-DD (as printed on documents) into the
// DD.MM.YYYY form the schemas expect. Unparseable input passes through.
func formatGermanDate(date string) string {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return date
	}
	return parsed.Format("02.01.2006")
}

// applyRegisterExcerpt writes the extracted excerpt onto the form's slots as
// trusted prefill. Only slots the form actually defines are touched.
func applyRegisterExcerpt(form *schema.Form, st *models.DialogueState, ex *models.RegisterExcerpt, branchDiffers bool) {
	if ex == nil {
		return
	}
	prefillSlot(form, st, "register_authority", ex.Authority)
	prefillSlot(form, st, "commercial_register_number", ex.HRANumber)
	prefillSlot(form, st, "company_name", ex.CompanyName)
	prefillSlot(form, st, "legal_type", ex.LegalType)
	prefillSlot(form, st, "activity", ex.Activity)

	if !branchDiffers && ex.Street != "" {
		prefillSlot(form, st, "representative_address",
			fmt.Sprintf("%s, %s, %s, %s", ex.Street, ex.HouseNumber, ex.PostalCode, ex.City))
	}

	if len(ex.CEOs) > 0 {
		ceo := ex.CEOs[0]
		prefillSlot(form, st, "family_name", ceo.FamilyName)
		prefillSlot(form, st, "given_name", ceo.GivenName)
		prefillSlot(form, st, "birth_date", formatGermanDate(ceo.BirthDate))
	}
	prefillSlot(form, st, "num_representatives", fmt.Sprintf("%d", len(ex.CEOs)))
	slog.Info("applyRegisterExcerpt: prefilled form from excerpt", "ceos", len(ex.CEOs), "branchDiffers", branchDiffers)
}

// applyIDCard writes the extracted card data onto the form's personal slots.
func applyIDCard(form *schema.Form, st *models.DialogueState, card *models.IDCardData) {
	if card == nil {
		return
	}
	prefillSlot(form, st, "family_name", card.FamilyName)
	prefillSlot(form, st, "given_name", card.GivenName)
	prefillSlot(form, st, "birth_date", formatGermanDate(card.BirthDate))
	prefillSlot(form, st, "nationality", card.Nationality)
	if card.Street != "" {
		prefillSlot(form, st, "representative_address",
			fmt.Sprintf("%s, %s, %s, %s", card.Street, card.HouseNumber, card.PostalCode, card.City))
	}
	slog.Info("applyIDCard: prefilled personal slots from card")
}

// prefillSlot stores a trusted record for a slot the form defines. Prefill
// bypasses validation; the user reviewed the values in the wizard.
func prefillSlot(form *schema.Form, st *models.DialogueState, name, value string) {
	slot := form.Slot(name)
	if slot == nil || strings.TrimSpace(value) == "" {
		return
	}
	st.Responses[name] = models.ResponseRecord{
		Value:             value,
		TargetField:       slot.TargetField,
		Choices:           slot.Choices,
		CheckBoxCondition: slot.CheckBoxCondition,
	}
}
