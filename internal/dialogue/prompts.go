package dialogue

import (
	"fmt"
	"strings"

	"github.com/CivicForms/FormPilot/internal/models"
)

// renderPrompt builds the German question text for a slot: the prompt line,
// a numbered option list for choice slots, the expandable description, and
// the upload affordance when present.
func renderPrompt(slot *models.SlotDefinition) string {
	var b strings.Builder
	b.WriteString(slot.Prompt)

	if slot.Type == models.SlotTypeChoice {
		b.WriteString("\n")
		for i, c := range slot.Choices {
			fmt.Fprintf(&b, "\n%d. %s", i+1, c)
		}
	}
	if slot.Description != "" {
		b.WriteString("\n\nℹ️ ")
		b.WriteString(slot.Description)
	}
	if slot.Upload != nil && slot.Upload.Show {
		label := slot.Upload.Label
		if label == "" {
			label = "Dokument hochladen"
		}
		b.WriteString("\n\n📎 ")
		b.WriteString(label)
	}
	return b.String()
}

// renderChoiceReprompt repeats the option list after an unmatched answer.
func renderChoiceReprompt(slot *models.SlotDefinition) string {
	var b strings.Builder
	b.WriteString("Das habe ich leider nicht zuordnen können. Bitte wählen Sie eine der folgenden Optionen (Nummer oder Text):\n")
	for i, c := range slot.Choices {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c)
	}
	return b.String()
}

// genericRetryMessage is sent when an external collaborator fails mid-turn.
const genericRetryMessage = "Entschuldigung, da ist gerade etwas schiefgelaufen. Bitte versuchen Sie es noch einmal."
