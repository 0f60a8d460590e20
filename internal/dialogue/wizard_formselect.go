package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/validate"
)

// FormSelectionWizard presents the numbered list of available forms and
// resolves the user's pick by number or title.
type FormSelectionWizard struct {
	state     *models.FormSelectionWizardState
	forms     *schema.Registry
	lang      string
	localizer FormListLocalizer
}

// NewFormSelectionWizard reconstructs the wizard from its persisted substate.
func NewFormSelectionWizard(state *models.FormSelectionWizardState, forms *schema.Registry, lang string, localizer FormListLocalizer) *FormSelectionWizard {
	return &FormSelectionWizard{state: state, forms: forms, lang: lang, localizer: localizer}
}

// Selected returns the chosen form key once the wizard is done.
func (w *FormSelectionWizard) Selected() string { return w.state.Selected }

// Step advances the wizard by one turn. done is true once a form is chosen.
func (w *FormSelectionWizard) Step(ctx context.Context, userText string) (string, bool, string, error) {
	if !w.state.Presented || userText == "" {
		list, err := w.renderList(ctx)
		if err != nil {
			return "", false, "", err
		}
		w.state.Presented = true
		return list, false, "", nil
	}

	titles := w.titles()
	matched, ok, err := (validate.LocalMatcher{}).Match(ctx, userText, titles)
	if err != nil {
		return "", false, "", fmt.Errorf("FormSelectionWizard.Step: %w", err)
	}
	if !ok {
		list, err := w.renderList(ctx)
		if err != nil {
			return "", false, "", err
		}
		return "Das habe ich leider nicht zuordnen können.\n\n" + list, false, "", nil
	}

	for i, title := range titles {
		if title == matched {
			key := w.forms.Keys()[i]
			w.state.Selected = key
			slog.Info("FormSelectionWizard.Step: form selected", "form", key)
			return "", true, "", nil
		}
	}
	// unreachable, matcher only returns members of titles
	return "", false, "", fmt.Errorf("FormSelectionWizard.Step: matched unknown title %q", matched)
}

func (w *FormSelectionWizard) titles() []string {
	forms := w.forms.Forms()
	titles := make([]string, len(forms))
	for i, f := range forms {
		titles[i] = f.Title
	}
	return titles
}

func (w *FormSelectionWizard) renderList(ctx context.Context) (string, error) {
	titles := w.titles()
	header := "Welches Formular möchten Sie ausfüllen? Bitte wählen Sie (Nummer oder Name):"

	// German short-circuits without an LLM call
	if w.lang != "" && w.lang != "de" {
		localized, err := w.localizer.LocalizeTitles(ctx, append([]string{header}, titles...), w.lang)
		if err != nil {
			return "", fmt.Errorf("FormSelectionWizard.Step: localizing form list: %w", err)
		}
		header = localized[0]
		titles = localized[1:]
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for i, t := range titles {
		fmt.Fprintf(&b, "\n%d. %s", i+1, t)
	}
	return b.String(), nil
}
