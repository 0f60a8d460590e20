package messaging

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CivicForms/FormPilot/internal/dialogue"
	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
	"github.com/CivicForms/FormPilot/internal/store"
	"github.com/CivicForms/FormPilot/internal/translate"
	"github.com/CivicForms/FormPilot/internal/validate"
)

// mockService is an in-memory Service for router tests. Incoming messages
// are pushed through Inject; outgoing messages are recorded.
type mockService struct {
	mu        sync.Mutex
	sent      []sentMessage
	receipts  chan models.Receipt
	responses chan models.Response
}

type sentMessage struct {
	To   string
	Body string
}

func newMockService() *mockService {
	return &mockService{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return phoneNumberRegex.ReplaceAllString(recipient, ""), nil
}

func (m *mockService) SendMessage(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return nil
}

func (m *mockService) Start(_ context.Context) error { return nil }
func (m *mockService) Stop() error                   { return nil }

func (m *mockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) Inject(r models.Response) { m.responses <- r }

func (m *mockService) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

type routerDetector struct{}

func (routerDetector) Detect(_ context.Context, _ string) (string, string, error) {
	return "", "", nil
}

type routerApprover struct{}

func (routerApprover) ClassifyApproval(_ context.Context, _, _ string) (bool, bool, error) {
	return false, false, nil
}

type routerLocalizer struct{}

func (routerLocalizer) LocalizeTitles(_ context.Context, titles []string, _ string) ([]string, error) {
	return titles, nil
}

type routerClassifier struct{}

func (routerClassifier) Classify(_ context.Context, _ string, _ []dialogue.SlotDescriptor) (string, error) {
	return "", nil
}

type routerExtractor struct{ excerpt *models.RegisterExcerpt }

func (r routerExtractor) ExtractRegisterExcerpt(_ context.Context, _ []byte, _ string) (*models.RegisterExcerpt, error) {
	return r.excerpt, nil
}

func (r routerExtractor) ExtractIDCard(_ context.Context, _ []byte, _ string) (*models.IDCardData, error) {
	return &models.IDCardData{}, nil
}

func newRouterFixture(t *testing.T, prefill string) (*DialogueRouter, *mockService, *store.InMemoryStore, *dialogue.SessionManager) {
	t.Helper()
	form := &schema.Form{
		Key:           "gewerbeanmeldung",
		Title:         "Gewerbeanmeldung",
		PrefillWizard: prefill,
		Slots: []models.SlotDefinition{
			{Name: "family_name", Type: models.SlotTypeText, Prompt: "Wie lautet Ihr Nachname?", TargetField: models.FieldRef{"Nachname"}},
		},
	}
	form.Bind(validate.NewBaseSet())
	forms := schema.NewRegistry(form)

	engine := dialogue.NewEngine(dialogue.EngineOpts{
		Forms:      forms,
		Processor:  dialogue.NewProcessor(validate.LocalMatcher{}, translate.NoopTranslator{}),
		Edits:      dialogue.NewEditController(routerClassifier{}, dialogue.LockPolicyKeepLocked),
		Translator: translate.NoopTranslator{},
		Detector:   routerDetector{},
		Approver:   routerApprover{},
		Localizer:  routerLocalizer{},
		Extractor:  routerExtractor{excerpt: &models.RegisterExcerpt{CompanyName: "Muster GmbH"}},
	})
	mem := store.NewInMemoryStore()
	mgr := dialogue.NewSessionManager(mem, engine)
	svc := newMockService()
	return NewDialogueRouter("whatsapp", svc, mgr, mem), svc, mem, mgr
}

// waitForSends polls until the mock service recorded at least n messages.
func waitForSends(t *testing.T, svc *mockService, n int) []sentMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := svc.Sent(); len(sent) >= n {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages, got %d", n, len(svc.Sent()))
	return nil
}

func TestRouterFirstContactOpensDialogue(t *testing.T) {
	router, svc, mem, _ := newRouterFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router.Start(ctx)

	svc.Inject(models.Response{From: "+49 171 1234567", Body: "Hallo", Time: time.Now().Unix()})

	sent := waitForSends(t, svc, 1)
	if !strings.Contains(sent[0].Body, "Willkommen") {
		t.Fatalf("first contact must get the greeting, got %q", sent[0].Body)
	}
	if sent[0].To != "491711234567" {
		t.Errorf("recipient must be canonicalized, got %q", sent[0].To)
	}

	sessions, err := mem.ListSessions()
	if err != nil || len(sessions) != 1 {
		t.Fatalf("expected one session, got %d (err %v)", len(sessions), err)
	}
	if sessions[0].Channel != "whatsapp" || sessions[0].Recipient != "491711234567" {
		t.Errorf("session identity wrong: %+v", sessions[0])
	}

	responses, err := mem.GetResponses()
	if err != nil || len(responses) != 1 {
		t.Fatalf("inbound message must be persisted, got %d (err %v)", len(responses), err)
	}
}

func TestRouterAdvancesExistingDialogue(t *testing.T) {
	router, svc, _, _ := newRouterFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router.Start(ctx)

	svc.Inject(models.Response{From: "491711234567", Body: "Hallo"})
	waitForSends(t, svc, 1)

	svc.Inject(models.Response{From: "491711234567", Body: "Deutsch"})
	sent := waitForSends(t, svc, 2)
	if !strings.Contains(sent[1].Body, "Deutsch") && !strings.Contains(sent[1].Body, "fortfahren") {
		t.Fatalf("expected the language confirmation, got %q", sent[1].Body)
	}

	svc.Inject(models.Response{From: "491711234567", Body: "Ja"})
	sent = waitForSends(t, svc, 3)
	joined := ""
	for _, m := range sent[2:] {
		joined += m.Body + "\n"
	}
	if !strings.Contains(joined, "Gewerbeanmeldung") {
		t.Fatalf("confirmed language must lead to the form list, got %q", joined)
	}
}

func TestRouterIngestsDocumentUpload(t *testing.T) {
	router, svc, mem, mgr := newRouterFixture(t, string(models.WizardKindRegisterExcerpt))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router.Start(ctx)

	// seed an open session sitting in the upload phase
	st := models.NewDialogueState("doc-session")
	st.Lang = "de"
	st.FormType = "gewerbeanmeldung"
	st.ActiveWizard = models.WizardKindRegisterExcerpt
	st.Wizard = &models.WizardState{RegisterExcerpt: &models.RegisterExcerptWizardState{Phase: models.PrefillPhaseAwaitingUpload}}
	session := &models.DialogueSession{
		SessionID: "doc-session",
		Channel:   "whatsapp",
		Recipient: "491711234567",
		State:     *st,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
	if err := mem.SaveSession(session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	svc.Inject(models.Response{From: "491711234567", Image: []byte{0xFF, 0xD8}, MimeType: "image/jpeg"})

	sent := waitForSends(t, svc, 1)
	if !strings.Contains(sent[0].Body, "Muster GmbH") {
		t.Fatalf("document upload must produce the review message, got %q", sent[0].Body)
	}

	stored, err := mgr.Get(ctx, "doc-session")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.State.Wizard.RegisterExcerpt.Phase != models.PrefillPhaseReview {
		t.Errorf("session must be in review phase, got %q", stored.State.Wizard.RegisterExcerpt.Phase)
	}
}

func TestRouterPersistsReceipts(t *testing.T) {
	router, svc, mem, _ := newRouterFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router.Start(ctx)

	svc.receipts <- models.Receipt{To: "491711234567", Status: models.MessageStatusDelivered, Time: time.Now().Unix()}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		receipts, err := mem.GetReceipts()
		if err != nil {
			t.Fatalf("GetReceipts failed: %v", err)
		}
		if len(receipts) == 1 {
			if receipts[0].Status != models.MessageStatusDelivered {
				t.Fatalf("unexpected receipt: %+v", receipts[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for receipt persistence")
}
