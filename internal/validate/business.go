package validate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/CivicForms/FormPilot/internal/genai"
)

// startDatePastWindow is how far a start date may lie in the past.
const startDatePastWindow = 31 * 24 * time.Hour

var dateRe = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)

// timeNow is swapped in date tests.
var timeNow = time.Now

// NewBusinessRegistrationSet creates the validator set for the business
// registration form. Activity, nationality, and representative address checks
// go through the language model; names and the start date are local.
func NewBusinessRegistrationSet(client genai.ClientInterface) *Set {
	s := NewSet("business_registration")
	s.Register("family_name", Name)
	s.Register("given_name", Name)
	s.Register("company_name", Name)
	s.Register("commercial_register_number", NotEmpty)
	s.Register("activity", Activity(client))
	s.Register("nationality", Nationality(client))
	s.Register("representative_address", RepresentativeAddress(client))
	s.Register("start_date", StartDate)
	return s
}

const activityPrompt = "Beispiele:\n\n" +
	"Handel mit Waren aller Art – INVALID\n" +
	"Herstellung von Kinderspielwaren – VALID\n" +
	"Dienstleistungen aller Art – INVALID\n" +
	"Selbstständigkeit im Bereich Liefer- und Kurierdienste – VALID\n" +
	"Dinge verkaufen – INVALID\n" +
	"Sanitärdienstleistungen – VALID\n" +
	"Allgemeine Dienstleistungen – INVALID\n" +
	"Großhandel mit Elektrowaren – VALID\n" +
	"Chemische Kastration von Menschen – INVALID\n" +
	"Auftragsmord – INVALID\n" +
	"Verkauf von Betäubungsmitteln an Privatpersonen – INVALID\n" +
	"Online Marketing – INVALID\n\n" +
	"Aufgabe:\n" +
	"Prüfe, ob die folgende Tätigkeitsbeschreibung hinreichend präzise und zulässig ist. " +
	"Menschenverachtende oder verbotene Tätigkeiten sind nicht zulässig.\n" +
	"Antwort ausschließlich mit: VALID (präzise genug & zulässig) oder INVALID (zu allgemein oder unzulässig).\n\n" +
	"Beschreibung: %s\nAntwort:"

// Activity checks that a business activity description is specific enough and
// lawful, via a VALID/INVALID few-shot classification.
func Activity(client genai.ClientInterface) Func {
	return func(ctx context.Context, input string) (Result, error) {
		response, err := client.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(activityPrompt, input)),
		})
		if err != nil {
			return Result{}, fmt.Errorf("Activity: classification failed: %w", err)
		}
		if firstWord(response) == "VALID" {
			return Result{Valid: true, Normalized: input}, nil
		}
		slog.Debug("Activity: description rejected", "responseLength", len(response))
		return Result{
			Message: "Die Beschreibung ist nicht zulässig oder zu allgemein. " +
				"Bitte 'Tätigkeits-Art' + 'Objekt' (+ 'Ergänzung') angeben und zu breite Formulierungen vermeiden.",
		}, nil
	}
}

const nationalityPrompt = "Aufgabe:\n" +
	"Klassifiziere, ob es sich bei der Eingabe um eine VALIDE Staatsangehörigkeit handelt.\n" +
	"VALIDE ist sie, wenn das Land tatsächlich existiert und korrekt geschrieben wurde. Andernfalls ist sie INVALID.\n" +
	"Antwort ausschließlich mit: VALID (korrekt geschrieben, tatsächliches Land) oder INVALID (falsch geschrieben, ausgedachtes Land).\n\n" +
	"Eingabe: %s\nAntwort:"

// Nationality checks that the answer names a real, correctly spelled country.
func Nationality(client genai.ClientInterface) Func {
	return func(ctx context.Context, input string) (Result, error) {
		response, err := client.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(nationalityPrompt, input)),
		})
		if err != nil {
			return Result{}, fmt.Errorf("Nationality: classification failed: %w", err)
		}
		if firstWord(response) == "VALID" {
			return Result{Valid: true, Normalized: input}, nil
		}
		return Result{Message: "Bitte geben Sie eine existierende, korrekt geschriebene Staatsangehörigkeit an."}, nil
	}
}

const addressSystemPrompt = "Aufgabe: Extrahiere aus der Nutzereingabe den Straßennamen, die Hausnummer, die Postleitzahl und den Stadtnamen. " +
	"Wenn alle Angaben vorhanden sind, gib 'VALID' zurück; wenn auch nur eine Information fehlt " +
	"(z. B. keine Postleitzahl, keine Hausnummer, kein Stadtname, kein Straßenname), gib 'INVALID' zurück.\n" +
	"Wenn du kleine Tippfehler im Stadtnamen findest, gib den korrigierten Namen in 'city_name' zurück.\n" +
	"Falls 'INVALID', gib im Feld 'invalid_reason' eine kurze Begründung an, warum die Eingabe 'INVALID' ist " +
	"(z. B. fehlende Hausnummer, fehlende Postleitzahl, falsche Postleitzahl ...).\n" +
	"WICHTIG: Halte dich strikt an das angegebene JSON-Format. **Unter keinen Umständen fehlende Informationen erfinden.** " +
	"Kein Freitext, keine Erklärungen. " +
	"Eine gültige Postleitzahl muss eine deutsche Postleitzahl mit genau 5 Ziffern zwischen 01000 und 99999 sein."

var addressSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"validity":       map[string]interface{}{"type": "string", "enum": []string{"VALID", "INVALID"}},
		"invalid_reason": map[string]interface{}{"type": "string", "description": "Grund für die Ungültigkeit; leer lassen, falls gültig"},
		"street_name":    map[string]interface{}{"type": "string", "description": "Straßenname aus der Nutzereingabe; leer, falls fehlt"},
		"street_number":  map[string]interface{}{"type": "string", "description": "Hausnummer aus der Nutzereingabe; leer, falls fehlt"},
		"postal_code":    map[string]interface{}{"type": "string", "description": "Postleitzahl aus der Nutzereingabe; leer, falls fehlt"},
		"city_name":      map[string]interface{}{"type": "string", "description": "Stadtname aus der Nutzereingabe; leer, falls fehlt"},
	},
	"required": []string{"validity", "invalid_reason", "street_name", "street_number", "postal_code", "city_name"},
}

type addressExtraction struct {
	Validity      string `json:"validity"`
	InvalidReason string `json:"invalid_reason"`
	StreetName    string `json:"street_name"`
	StreetNumber  string `json:"street_number"`
	PostalCode    string `json:"postal_code"`
	CityName      string `json:"city_name"`
}

// RepresentativeAddress extracts street, house number, postal code, and city
// from a free-text address and normalizes it into the comma-joined form the
// output document expects.
func RepresentativeAddress(client genai.ClientInterface) Func {
	return func(ctx context.Context, input string) (Result, error) {
		var extracted addressExtraction
		err := client.GenerateStructured(ctx, []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(addressSystemPrompt),
			openai.UserMessage(input),
		}, "address_extraction", addressSchema, &extracted)
		if err != nil {
			return Result{}, fmt.Errorf("RepresentativeAddress: extraction failed: %w", err)
		}
		if extracted.Validity != "VALID" {
			msg := extracted.InvalidReason
			if msg == "" {
				msg = "Bitte geben Sie die vollständige Adresse an (Straße, Hausnummer, Postleitzahl, Ort)."
			}
			return Result{Message: msg}, nil
		}
		normalized := fmt.Sprintf("%s, %s, %s, %s",
			extracted.StreetName, extracted.StreetNumber, extracted.PostalCode, extracted.CityName)
		return Result{Valid: true, Normalized: normalized}, nil
	}
}

// StartDate checks a date in TT.MM.JJJJ format. The date may lie at most one
// month (31 days) in the past; future dates are allowed.
func StartDate(_ context.Context, input string) (Result, error) {
	trimmed := strings.TrimSpace(input)
	if !dateRe.MatchString(trimmed) {
		return Result{Message: "Bitte geben Sie das Datum im Format TT.MM.JJJJ an (z. B. 05.09.2025)."}, nil
	}

	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		loc = time.UTC
	}
	date, err := time.ParseInLocation("02.01.2006", trimmed, loc)
	if err != nil {
		return Result{Message: "Ungültiges Datum (z. B. 31.02. existiert nicht). Bitte prüfen Sie Ihre Eingabe."}, nil
	}

	today := timeNow().In(loc).Truncate(24 * time.Hour)
	if date.Before(today.Add(-startDatePastWindow)) {
		return Result{
			Message: "Das Datum liegt mehr als einen Monat in der Vergangenheit. " +
				"Bitte ein Datum wählen, das höchstens 1 Monat zurückliegt.",
		}, nil
	}
	return Result{Valid: true, Normalized: trimmed}, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
