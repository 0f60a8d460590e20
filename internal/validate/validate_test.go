package validate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/CivicForms/FormPilot/internal/genai"
)

func TestSetForSlotFallsBackToBasic(t *testing.T) {
	s := NewBaseSet()
	ctx := context.Background()

	res, err := s.ForSlot("unknown_slot")(ctx, "anything goes")
	if err != nil {
		t.Fatalf("fallback validator failed: %v", err)
	}
	if !res.Valid || res.Normalized != "anything goes" {
		t.Errorf("fallback should accept verbatim, got %+v", res)
	}
}

func TestNameValidator(t *testing.T) {
	ctx := context.Background()

	res, err := Name(ctx, "Li")
	if err != nil {
		t.Fatalf("Name failed: %v", err)
	}
	if res.Valid || res.Message == "" {
		t.Errorf("two-character name should be invalid with a reason, got %+v", res)
	}

	res, _ = Name(ctx, "  Maier  ")
	if !res.Valid || res.Normalized != "Maier" {
		t.Errorf("valid name should be trimmed, got %+v", res)
	}
}

func TestProviderGetUnknownSet(t *testing.T) {
	p := Provider{}
	p.Add(NewBaseSet())

	if _, err := p.Get("base"); err != nil {
		t.Fatalf("Get(base) failed: %v", err)
	}
	if _, err := p.Get("nope"); err == nil {
		t.Fatal("Get of unknown set should fail")
	}
}

func TestStartDate(t *testing.T) {
	restore := timeNow
	timeNow = func() time.Time { return time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC) }
	defer func() { timeNow = restore }()

	ctx := context.Background()
	tests := []struct {
		input   string
		valid   bool
		msgPart string
	}{
		{"05.09.2025", true, ""},
		{"01.01.2026", true, ""}, // future is fine
		{"5.9.2025", false, "TT.MM.JJJJ"},
		{"31.02.2025", false, "existiert nicht"},
		{"01.01.2025", false, "Vergangenheit"},
	}
	for _, tt := range tests {
		res, err := StartDate(ctx, tt.input)
		if err != nil {
			t.Fatalf("StartDate(%q) failed: %v", tt.input, err)
		}
		if res.Valid != tt.valid {
			t.Errorf("StartDate(%q).Valid = %v, want %v", tt.input, res.Valid, tt.valid)
		}
		if tt.msgPart != "" && !strings.Contains(res.Message, tt.msgPart) {
			t.Errorf("StartDate(%q) message %q missing %q", tt.input, res.Message, tt.msgPart)
		}
	}
}

func TestActivityValidator(t *testing.T) {
	ctx := context.Background()

	mock := genai.NewMockClient("VALID")
	res, err := Activity(mock)(ctx, "Großhandel mit Elektrowaren")
	if err != nil || !res.Valid {
		t.Errorf("specific activity should be valid, got %+v, %v", res, err)
	}

	mock = genai.NewMockClient("INVALID too generic")
	res, err = Activity(mock)(ctx, "Dienstleistungen aller Art")
	if err != nil {
		t.Fatalf("Activity failed: %v", err)
	}
	if res.Valid || res.Message == "" {
		t.Errorf("generic activity should be invalid with a reason, got %+v", res)
	}
}

func TestActivityValidatorPropagatesOutage(t *testing.T) {
	mock := &genai.MockClient{Err: errors.New("upstream down")}
	if _, err := Activity(mock)(context.Background(), "Handel"); err == nil {
		t.Fatal("LLM outage must surface as an error, not as invalid")
	}
}

func TestRepresentativeAddressNormalizes(t *testing.T) {
	mock := &genai.MockClient{StructuredPayloads: []string{
		`{"validity":"VALID","invalid_reason":"","street_name":"Musterstraße","street_number":"12","postal_code":"12345","city_name":"Musterstadt"}`,
	}}
	res, err := RepresentativeAddress(mock)(context.Background(), "Musterstraße 12 in 12345 Musterstadt")
	if err != nil {
		t.Fatalf("RepresentativeAddress failed: %v", err)
	}
	if !res.Valid {
		t.Fatalf("address should be valid, got %+v", res)
	}
	want := "Musterstraße, 12, 12345, Musterstadt"
	if res.Normalized != want {
		t.Errorf("Normalized = %q, want %q", res.Normalized, want)
	}
}

func TestRepresentativeAddressInvalidCarriesReason(t *testing.T) {
	mock := &genai.MockClient{StructuredPayloads: []string{
		`{"validity":"INVALID","invalid_reason":"fehlende Hausnummer","street_name":"Musterstraße","street_number":"","postal_code":"12345","city_name":"Musterstadt"}`,
	}}
	res, err := RepresentativeAddress(mock)(context.Background(), "Musterstraße, 12345 Musterstadt")
	if err != nil {
		t.Fatalf("RepresentativeAddress failed: %v", err)
	}
	if res.Valid || res.Message != "fehlende Hausnummer" {
		t.Errorf("expected invalid result with extractor reason, got %+v", res)
	}
}

func TestBusinessRegistrationSetBindings(t *testing.T) {
	s := NewBusinessRegistrationSet(genai.NewMockClient())
	for _, slot := range []string{"family_name", "activity", "representative_address", "start_date"} {
		if !s.Has(slot) {
			t.Errorf("business set missing validator for %q", slot)
		}
	}
	if s.Has("random_slot") {
		t.Error("unexpected validator binding for random_slot")
	}
}
