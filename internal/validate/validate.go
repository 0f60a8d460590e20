// Package validate provides slot answer validation for FormPilot. Validators
// are grouped into named Sets that form schemas reference; each Set binds
// validation functions to slot names with a permissive fallback for slots
// without a dedicated check.
package validate

import (
	"context"
	"fmt"
)

// Result is the outcome of validating one answer. Normalized carries the
// value to store on success. A non-empty Message on a valid result is an
// informational aside shown to the user; on an invalid result it is the
// reprompt reason.
type Result struct {
	Valid      bool
	Message    string
	Normalized string
}

// Func validates a raw user answer. An error return means the check itself
// failed (for example an LLM outage) and must be treated as retryable, never
// as an invalid answer.
type Func func(ctx context.Context, input string) (Result, error)

// Basic accepts any input unchanged. It is the fallback for slots without a
// dedicated validator.
func Basic(_ context.Context, input string) (Result, error) {
	return Result{Valid: true, Normalized: input}, nil
}

// Set binds validation functions to slot names under a registry name.
type Set struct {
	name     string
	slots    map[string]Func
	fallback Func
}

// NewSet creates an empty validator set with the Basic fallback.
func NewSet(name string) *Set {
	return &Set{name: name, slots: make(map[string]Func), fallback: Basic}
}

// Name returns the registry name of the set.
func (s *Set) Name() string { return s.name }

// Register binds a validator to a slot name, replacing any previous binding.
func (s *Set) Register(slotName string, fn Func) {
	s.slots[slotName] = fn
}

// ForSlot returns the validator bound to the slot name, or the fallback.
func (s *Set) ForSlot(slotName string) Func {
	if fn, ok := s.slots[slotName]; ok {
		return fn
	}
	return s.fallback
}

// Has reports whether a dedicated validator is bound to the slot name.
func (s *Set) Has(slotName string) bool {
	_, ok := s.slots[slotName]
	return ok
}

// Provider resolves validator sets by name at schema load time.
type Provider map[string]*Set

// Get returns the named set or an error naming the unknown set.
func (p Provider) Get(name string) (*Set, error) {
	set, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("unknown validator set %q", name)
	}
	return set, nil
}

// Add registers a set under its own name.
func (p Provider) Add(set *Set) {
	p[set.Name()] = set
}
