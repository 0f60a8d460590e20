// Package pdffill turns a completed dialogue into the payload the PDF form
// filler consumes: the export document, the flattened field map, and a JSON
// writer. Byte-level PDF manipulation stays behind the Filler interface.
package pdffill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/schema"
)

// CheckboxOn is the value AcroForm checkboxes expect for a ticked box.
const CheckboxOn = "/Y"

// Filler writes a filled PDF from a field map. Implementations wrap an
// external PDF toolchain.
type Filler interface {
	Fill(ctx context.Context, templatePath string, fieldMap map[string]string, outputPath string) error
}

// BuildExport assembles the export payload for a completed dialogue. All
// stored records are included, locked ones with their empty values, so the
// filler sees the full slot surface of the form.
func BuildExport(form *schema.Form, st *models.DialogueState) *models.FormExport {
	data := make(map[string]models.ResponseRecord, len(st.Responses))
	for name, rec := range st.Responses {
		data[name] = rec
	}
	return &models.FormExport{
		SessionID:      st.SessionID,
		FormType:       form.Key,
		Lang:           st.Lang,
		OutputTemplate: form.OutputTemplate,
		Data:           data,
		CreatedAt:      time.Now().UTC(),
	}
}

// BuildFieldMap flattens an export into PDF field assignments. Choice records
// tick the target checkbox matching the stored value; text records accumulate
// into their target fields, shared fields joined with ", ".
func BuildFieldMap(export *models.FormExport) map[string]string {
	fieldMap := make(map[string]string)
	textAccum := make(map[string][]string)

	for _, rec := range export.Data {
		if len(rec.Choices) > 0 {
			for idx, fieldName := range rec.TargetField {
				if idx >= len(rec.Choices) {
					break
				}
				if choiceSelected(rec.Value, rec.Choices, idx) {
					fieldMap[fieldName] = CheckboxOn
				}
			}
			continue
		}
		for _, fieldName := range rec.TargetField {
			textAccum[fieldName] = append(textAccum[fieldName], rec.Value)
		}
	}

	for fieldName, vals := range textAccum {
		var nonEmpty []string
		for _, v := range vals {
			if v != "" {
				nonEmpty = append(nonEmpty, v)
			}
		}
		fieldMap[fieldName] = strings.Join(nonEmpty, ", ")
	}
	return fieldMap
}

// choiceSelected decides whether the checkbox at idx is the one the stored
// value selects. Boolean-like values map to the first (true) or second
// (false) target; other values match their choice label case-insensitively.
func choiceSelected(value string, choices []string, idx int) bool {
	switch strings.ToLower(value) {
	case "true", "ja", "yes", "1", "on":
		return idx == 0
	case "false":
		return idx == 1
	}
	return strings.EqualFold(strings.TrimSpace(value), choices[idx])
}

// WriteJSON persists the export payload next to the filled PDFs. The file is
// the contract with out-of-process fillers.
func WriteJSON(export *models.FormExport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("pdffill.WriteJSON: creating export directory: %w", err)
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("pdffill.WriteJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("pdffill.WriteJSON: %w", err)
	}
	slog.Info("pdffill.WriteJSON: export written", "path", path, "form", export.FormType, "slots", len(export.Data))
	return nil
}
