// Package schema loads declarative form definitions and holds them in an
// immutable registry. One JSON or YAML document describes one form; the named
// validator set is bound at load time so unknown names fail at startup
// instead of mid-dialogue.
package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/validate"
)

// Form is one loaded form schema. Immutable after load.
type Form struct {
	// Key is the form identifier derived from the file name.
	Key            string `json:"key" yaml:"-"`
	Title          string `json:"title" yaml:"title"`
	ValidatorSet   string `json:"validators,omitempty" yaml:"validators,omitempty"`
	OutputTemplate string `json:"output_template,omitempty" yaml:"output_template,omitempty"`
	// PrefillWizard names an optional document-prefill wizard
	// ("register_excerpt" or "id_card") run before the first slot.
	PrefillWizard string `json:"prefill_wizard,omitempty" yaml:"prefill_wizard,omitempty"`
	// FinalUpload asks for a supporting document after the last slot.
	FinalUpload bool                    `json:"final_upload,omitempty" yaml:"final_upload,omitempty"`
	Slots       []models.SlotDefinition `json:"slots" yaml:"slots"`

	validators *validate.Set
}

// Validators returns the validator set bound to this form.
func (f *Form) Validators() *validate.Set { return f.validators }

// SlotIndex returns the index of the named slot, or models.NoIndex.
func (f *Form) SlotIndex(name string) int {
	for i := range f.Slots {
		if f.Slots[i].Name == name {
			return i
		}
	}
	return models.NoIndex
}

// Slot returns the named slot definition, or nil.
func (f *Form) Slot(name string) *models.SlotDefinition {
	if i := f.SlotIndex(name); i != models.NoIndex {
		return &f.Slots[i]
	}
	return nil
}

// validateForm runs the cross-slot checks: unique names and conditions that
// reference strictly earlier slots.
func (f *Form) validateForm() error {
	if len(f.Slots) == 0 {
		return fmt.Errorf("form %q has no slots", f.Key)
	}
	switch models.WizardKind(f.PrefillWizard) {
	case models.WizardKindNone, models.WizardKindRegisterExcerpt, models.WizardKindIDCard:
	default:
		return fmt.Errorf("form %q: unknown prefill wizard %q", f.Key, f.PrefillWizard)
	}
	seen := make(map[string]int, len(f.Slots))
	for i := range f.Slots {
		slot := &f.Slots[i]
		if err := slot.Validate(); err != nil {
			return fmt.Errorf("form %q: %w", f.Key, err)
		}
		if prev, dup := seen[slot.Name]; dup {
			return fmt.Errorf("form %q: duplicate slot %q (positions %d and %d)", f.Key, slot.Name, prev, i)
		}
		seen[slot.Name] = i
	}
	for i := range f.Slots {
		slot := &f.Slots[i]
		if slot.Condition == nil {
			continue
		}
		src, ok := seen[slot.Condition.DependsOn]
		if !ok {
			return fmt.Errorf("form %q: slot %q depends on unknown slot %q", f.Key, slot.Name, slot.Condition.DependsOn)
		}
		if src >= i {
			return fmt.Errorf("form %q: slot %q depends on later slot %q", f.Key, slot.Name, slot.Condition.DependsOn)
		}
	}
	return nil
}

// Registry holds the loaded forms. Safe for concurrent reads; never mutated
// after LoadDir returns.
type Registry struct {
	forms map[string]*Form
	order []string
}

// LoadDir loads every *.json, *.yaml, and *.yml form document in dir and
// binds each form's validator set from the provider. A form without a
// validators field gets the "base" set.
func LoadDir(dir string, validators validate.Provider) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("Registry.LoadDir: reading %s: %w", dir, err)
	}

	reg := &Registry{forms: make(map[string]*Form)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		form, err := loadFile(path, ext)
		if err != nil {
			return nil, err
		}

		setName := form.ValidatorSet
		if setName == "" {
			setName = "base"
		}
		set, err := validators.Get(setName)
		if err != nil {
			return nil, fmt.Errorf("Registry.LoadDir: form %q: %w", form.Key, err)
		}
		form.validators = set

		if err := form.validateForm(); err != nil {
			return nil, fmt.Errorf("Registry.LoadDir: %w", err)
		}
		if _, dup := reg.forms[form.Key]; dup {
			return nil, fmt.Errorf("Registry.LoadDir: duplicate form key %q", form.Key)
		}
		reg.forms[form.Key] = form
		reg.order = append(reg.order, form.Key)
		slog.Info("Registry.LoadDir: loaded form", "key", form.Key, "title", form.Title, "slots", len(form.Slots), "validators", setName)
	}

	if len(reg.forms) == 0 {
		return nil, fmt.Errorf("Registry.LoadDir: no form documents found in %s", dir)
	}
	sort.Strings(reg.order)
	return reg, nil
}

func loadFile(path, ext string) (*Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Registry.LoadDir: reading %s: %w", path, err)
	}

	var form Form
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &form); err != nil {
			return nil, fmt.Errorf("Registry.LoadDir: parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &form); err != nil {
			return nil, fmt.Errorf("Registry.LoadDir: parsing %s: %w", path, err)
		}
	}

	base := filepath.Base(path)
	form.Key = strings.TrimSuffix(base, filepath.Ext(base))
	return &form, nil
}

// Get returns the form for a key.
func (r *Registry) Get(key string) (*Form, error) {
	form, ok := r.forms[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrFormNotFound, key)
	}
	return form, nil
}

// Keys returns the form keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Forms returns the loaded forms in key order.
func (r *Registry) Forms() []*Form {
	forms := make([]*Form, 0, len(r.order))
	for _, k := range r.order {
		forms = append(forms, r.forms[k])
	}
	return forms
}

// NewRegistry builds a registry from already-constructed forms. Intended for
// tests; production code loads from disk via LoadDir.
func NewRegistry(forms ...*Form) *Registry {
	reg := &Registry{forms: make(map[string]*Form)}
	for _, f := range forms {
		reg.forms[f.Key] = f
		reg.order = append(reg.order, f.Key)
	}
	sort.Strings(reg.order)
	return reg
}

// Bind attaches a validator set to a form built in code. Tests use this
// together with NewRegistry.
func (f *Form) Bind(set *validate.Set) *Form {
	f.validators = set
	return f
}
