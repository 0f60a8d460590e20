package validate

import (
	"context"
	"strings"
)

// Name checks that a name has at least three characters.
func Name(_ context.Context, input string) (Result, error) {
	trimmed := strings.TrimSpace(input)
	if len([]rune(trimmed)) <= 2 {
		return Result{Message: "Der Name muss mindestens drei Zeichen haben."}, nil
	}
	return Result{Valid: true, Normalized: trimmed}, nil
}

// NotEmpty checks that the answer is not blank.
func NotEmpty(_ context.Context, input string) (Result, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Result{Message: "Diese Angabe darf nicht leer sein."}, nil
	}
	return Result{Valid: true, Normalized: trimmed}, nil
}

// NewBaseSet creates the default validator set: permissive except for the
// common person-name slots.
func NewBaseSet() *Set {
	s := NewSet("base")
	s.Register("family_name", Name)
	s.Register("given_name", Name)
	return s
}
