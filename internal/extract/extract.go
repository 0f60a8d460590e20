// Package extract reads structured data out of uploaded documents
// (commercial-register excerpts, identity cards) through the language
// model's vision input.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"

	"github.com/CivicForms/FormPilot/internal/genai"
	"github.com/CivicForms/FormPilot/internal/models"
)

// Extractor pulls typed records from document images. Implementations must
// never invent values; absent fields stay empty.
type Extractor interface {
	ExtractRegisterExcerpt(ctx context.Context, image []byte, mimeType string) (*models.RegisterExcerpt, error)
	ExtractIDCard(ctx context.Context, image []byte, mimeType string) (*models.IDCardData, error)
}

// OpenAIExtractor implements Extractor on the GenAI client.
type OpenAIExtractor struct {
	client genai.ClientInterface
}

// NewOpenAIExtractor creates an extractor backed by the given client.
func NewOpenAIExtractor(client genai.ClientInterface) *OpenAIExtractor {
	return &OpenAIExtractor{client: client}
}

const excerptSystemPrompt = "Extrahiere die Angaben aus dem abgebildeten Handelsregisterauszug. " +
	"Gib ausschließlich tatsächlich lesbare Angaben zurück; fehlende Felder bleiben leer. " +
	"Erfinde unter keinen Umständen Werte. Geburtsdaten im Format YYYY-MM-DD."

var excerptSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"authority":    map[string]interface{}{"type": "string", "description": "Registergericht"},
		"hra_number":   map[string]interface{}{"type": "string", "description": "Registernummer (z. B. HRA 12345)"},
		"company_name": map[string]interface{}{"type": "string", "description": "Firmenname"},
		"legal_type":   map[string]interface{}{"type": "string", "description": "Rechtsform"},
		"activity":     map[string]interface{}{"type": "string", "description": "Gegenstand des Unternehmens"},
		"street":       map[string]interface{}{"type": "string"},
		"house_number": map[string]interface{}{"type": "string"},
		"postal_code":  map[string]interface{}{"type": "string"},
		"city":         map[string]interface{}{"type": "string"},
		"ceos": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]interface{}{
					"family_name": map[string]interface{}{"type": "string"},
					"given_name":  map[string]interface{}{"type": "string"},
					"birth_date":  map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
				},
				"required": []string{"family_name", "given_name", "birth_date"},
			},
		},
	},
	"required": []string{"authority", "hra_number", "company_name", "legal_type", "activity", "street", "house_number", "postal_code", "city", "ceos"},
}

// ExtractRegisterExcerpt implements Extractor.
func (e *OpenAIExtractor) ExtractRegisterExcerpt(ctx context.Context, image []byte, mimeType string) (*models.RegisterExcerpt, error) {
	var out models.RegisterExcerpt
	err := e.client.GenerateStructured(ctx, visionMessages(excerptSystemPrompt, image, mimeType), "register_excerpt", excerptSchema, &out)
	if err != nil {
		return nil, fmt.Errorf("OpenAIExtractor.ExtractRegisterExcerpt: %w", err)
	}
	slog.Debug("OpenAIExtractor.ExtractRegisterExcerpt: extracted excerpt", "ceos", len(out.CEOs), "hasCompanyName", out.CompanyName != "")
	return &out, nil
}

const idCardSystemPrompt = "Extrahiere die Angaben aus dem abgebildeten Ausweisdokument. " +
	"Gib ausschließlich tatsächlich lesbare Angaben zurück; fehlende Felder bleiben leer. " +
	"Erfinde unter keinen Umständen Werte. Geburtsdatum im Format YYYY-MM-DD."

var idCardSchema = map[string]interface{}{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]interface{}{
		"family_name":  map[string]interface{}{"type": "string"},
		"given_name":   map[string]interface{}{"type": "string"},
		"birth_date":   map[string]interface{}{"type": "string", "description": "YYYY-MM-DD"},
		"nationality":  map[string]interface{}{"type": "string"},
		"street":       map[string]interface{}{"type": "string"},
		"house_number": map[string]interface{}{"type": "string"},
		"postal_code":  map[string]interface{}{"type": "string"},
		"city":         map[string]interface{}{"type": "string"},
	},
	"required": []string{"family_name", "given_name", "birth_date", "nationality", "street", "house_number", "postal_code", "city"},
}

// ExtractIDCard implements Extractor.
func (e *OpenAIExtractor) ExtractIDCard(ctx context.Context, image []byte, mimeType string) (*models.IDCardData, error) {
	var out models.IDCardData
	err := e.client.GenerateStructured(ctx, visionMessages(idCardSystemPrompt, image, mimeType), "id_card", idCardSchema, &out)
	if err != nil {
		return nil, fmt.Errorf("OpenAIExtractor.ExtractIDCard: %w", err)
	}
	slog.Debug("OpenAIExtractor.ExtractIDCard: extracted card data", "hasFamilyName", out.FamilyName != "")
	return &out, nil
}

func visionMessages(systemPrompt string, image []byte, mimeType string) []openai.ChatCompletionMessageParamUnion {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
					},
				},
			},
		},
	}
}
