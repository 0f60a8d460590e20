package recovery

import (
	"context"
	"testing"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/store"
	"github.com/CivicForms/FormPilot/internal/validate"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	form := &schema.Form{
		Key:   "gewerbeanmeldung",
		Title: "Gewerbeanmeldung",
		Slots: []models.SlotDefinition{
			{Name: "family_name", Type: models.SlotTypeText, Prompt: "Nachname?"},
			{Name: "start_date", Type: models.SlotTypeText, Prompt: "Ab wann?"},
		},
	}
	form.Bind(validate.NewBaseSet())
	return schema.NewRegistry(form)
}

func saveSession(t *testing.T, mem *store.InMemoryStore, id string, mutate func(*models.DialogueState)) {
	t.Helper()
	st := models.NewDialogueState(id)
	if mutate != nil {
		mutate(st)
	}
	err := mem.SaveSession(&models.DialogueSession{
		SessionID: id,
		Channel:   "api",
		State:     *st,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	})
	if err != nil {
		t.Fatalf("SaveSession(%s) failed: %v", id, err)
	}
}

func TestRecoverSessionsKeepsResumable(t *testing.T) {
	mem := store.NewInMemoryStore()
	mgr := NewManager(mem, testRegistry(t))

	// fresh session still inside the language wizard
	saveSession(t, mem, "fresh", nil)
	// mid-form session
	saveSession(t, mem, "mid-form", func(st *models.DialogueState) {
		st.ActiveWizard = models.WizardKindNone
		st.Wizard = nil
		st.Lang = "de"
		st.FormType = "gewerbeanmeldung"
		st.Cursor = 1
		st.Responses["family_name"] = models.ResponseRecord{Value: "Muster"}
	})
	// completed session stays untouched even if its form vanished
	saveSession(t, mem, "done", func(st *models.DialogueState) {
		st.FormType = "altes_formular"
		st.ActiveWizard = models.WizardKindNone
		st.Completed = true
	})

	stats, err := mgr.RecoverSessions(context.Background())
	if err != nil {
		t.Fatalf("RecoverSessions failed: %v", err)
	}
	if stats.Scanned != 3 || stats.Open != 2 || stats.Completed != 1 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	for _, id := range []string{"fresh", "mid-form", "done"} {
		if session, err := mem.GetSession(id); err != nil || session == nil {
			t.Errorf("session %q must survive recovery (err %v)", id, err)
		}
	}
}

func TestRecoverSessionsDropsUnresumable(t *testing.T) {
	mem := store.NewInMemoryStore()
	mgr := NewManager(mem, testRegistry(t))

	saveSession(t, mem, "unknown-form", func(st *models.DialogueState) {
		st.ActiveWizard = models.WizardKindNone
		st.FormType = "steuererklaerung"
	})
	saveSession(t, mem, "cursor-overflow", func(st *models.DialogueState) {
		st.ActiveWizard = models.WizardKindNone
		st.FormType = "gewerbeanmeldung"
		st.Cursor = 99
	})
	saveSession(t, mem, "stale-slot", func(st *models.DialogueState) {
		st.ActiveWizard = models.WizardKindNone
		st.FormType = "gewerbeanmeldung"
		st.Responses["removed_slot"] = models.ResponseRecord{Value: "x"}
	})
	saveSession(t, mem, "healthy", func(st *models.DialogueState) {
		st.ActiveWizard = models.WizardKindNone
		st.FormType = "gewerbeanmeldung"
	})

	stats, err := mgr.RecoverSessions(context.Background())
	if err != nil {
		t.Fatalf("RecoverSessions failed: %v", err)
	}
	if stats.Dropped != 3 || stats.Open != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	for _, id := range []string{"unknown-form", "cursor-overflow", "stale-slot"} {
		if session, _ := mem.GetSession(id); session != nil {
			t.Errorf("session %q must be dropped", id)
		}
	}
	if session, _ := mem.GetSession("healthy"); session == nil {
		t.Error("healthy session must survive")
	}
}
