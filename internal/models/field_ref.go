package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// FieldRef names the output document field(s) a slot writes to. Schema
// documents give either a single field name as a plain string or a checkbox
// pair as a list; both shapes round-trip through JSON and YAML. A single
// name marshals back to a plain string.
type FieldRef []string

// UnmarshalJSON accepts either a string or an array of strings.
func (f *FieldRef) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = FieldRef{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("field_name must be a string or a list of strings: %w", err)
	}
	*f = FieldRef(many)
	return nil
}

// MarshalJSON emits a plain string for a single field name.
func (f FieldRef) MarshalJSON() ([]byte, error) {
	if len(f) == 1 {
		return json.Marshal(f[0])
	}
	return json.Marshal([]string(f))
}

// UnmarshalYAML accepts either a scalar or a sequence node.
func (f *FieldRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*f = FieldRef{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*f = FieldRef(many)
		return nil
	default:
		return fmt.Errorf("field_name must be a string or a list of strings")
	}
}

// MarshalYAML emits a plain string for a single field name.
func (f FieldRef) MarshalYAML() (interface{}, error) {
	if len(f) == 1 {
		return f[0], nil
	}
	return []string(f), nil
}
