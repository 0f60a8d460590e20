// Package models defines the core data structures for FormPilot.
//
// It includes form schema elements, stored slot answers, dialogue state,
// messaging payloads, and the API response envelope, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SlotType defines how a slot's answer is interpreted.
type SlotType string

const (
	// SlotTypeChoice expects one of a fixed set of options.
	SlotTypeChoice SlotType = "choice"
	// SlotTypeText expects free text, optionally validated.
	SlotTypeText SlotType = "text"
)

// ConditionRule names the comparison a slot condition applies to the stored
// value of its source slot.
type ConditionRule string

const (
	// ConditionRuleEquals is the default rule when none is given.
	ConditionRuleEquals ConditionRule = "equals"
	// ConditionRuleNotEmpty is met when the source value is non-empty.
	ConditionRuleNotEmpty ConditionRule = "not_empty"
	// ConditionRuleOneOf is met when the source value is in a value set.
	ConditionRuleOneOf ConditionRule = "one_of"
)

// Error variables for better error handling and testability
var (
	// ErrConditionSourceUnanswered signals a schema invariant violation: a slot
	// condition references a source slot with no stored record. This is an
	// authoring bug, never a user-facing reprompt.
	ErrConditionSourceUnanswered = errors.New("condition source slot has no stored record")
	ErrDialogueCompleted         = errors.New("dialogue already completed")
	ErrSessionNotFound           = errors.New("dialogue session not found")
	ErrFormNotFound              = errors.New("form not found")
	ErrEmptySlotName             = errors.New("slot_name cannot be empty")
	ErrInvalidSlotType           = errors.New("invalid slot_type")
	ErrMissingChoices            = errors.New("choices are required for choice slots")
	ErrMissingConditionSource    = errors.New("condition requires depends_on")
	ErrInvalidConditionRule      = errors.New("invalid condition rule")
	ErrMissingConditionValues    = errors.New("one_of condition requires values")
)

// IsValidSlotType checks if the given slot type is supported.
func IsValidSlotType(st SlotType) bool {
	switch st {
	case SlotTypeChoice, SlotTypeText:
		return true
	default:
		return false
	}
}

// SlotCondition gates a slot on the answer of an earlier slot.
type SlotCondition struct {
	DependsOn string        `json:"depends_on" yaml:"depends_on"`
	Rule      ConditionRule `json:"rule,omitempty" yaml:"rule,omitempty"`
	Value     string        `json:"value,omitempty" yaml:"value,omitempty"`
	Values    []string      `json:"values,omitempty" yaml:"values,omitempty"`
}

// EffectiveRule resolves the rule, defaulting to equals.
func (c *SlotCondition) EffectiveRule() ConditionRule {
	if c.Rule == "" {
		return ConditionRuleEquals
	}
	return c.Rule
}

// Validate checks that the condition is structurally usable.
func (c *SlotCondition) Validate() error {
	if c.DependsOn == "" {
		return ErrMissingConditionSource
	}
	switch c.EffectiveRule() {
	case ConditionRuleEquals, ConditionRuleNotEmpty:
		return nil
	case ConditionRuleOneOf:
		if len(c.Values) == 0 {
			return ErrMissingConditionValues
		}
		return nil
	default:
		return ErrInvalidConditionRule
	}
}

// UploadMeta describes an optional document-upload affordance shown alongside
// a slot prompt.
type UploadMeta struct {
	Show  bool   `json:"show_upload,omitempty" yaml:"show_upload,omitempty"`
	Label string `json:"upload_label,omitempty" yaml:"upload_label,omitempty"`
}

// SlotDefinition is one data-collection step of a form schema.
type SlotDefinition struct {
	Name        string            `json:"slot_name" yaml:"slot_name"`
	Type        SlotType          `json:"slot_type" yaml:"slot_type"`
	Prompt      string            `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Choices     []string          `json:"choices,omitempty" yaml:"choices,omitempty"`
	TargetField FieldRef          `json:"field_name,omitempty" yaml:"field_name,omitempty"`
	Condition   *SlotCondition    `json:"condition,omitempty" yaml:"condition,omitempty"`
	Hints       map[string]string `json:"hints,omitempty" yaml:"hints,omitempty"`
	// CheckBoxCondition selects which checkbox of a paired target field gets
	// ticked for boolean choice slots ("true" ticks the first field).
	CheckBoxCondition string      `json:"check_box_condition,omitempty" yaml:"check_box_condition,omitempty"`
	Upload            *UploadMeta `json:"upload,omitempty" yaml:"upload,omitempty"`
}

// Validate performs validation on a SlotDefinition in isolation. Cross-slot
// checks (condition ordering, name uniqueness) happen in the schema loader.
func (s *SlotDefinition) Validate() error {
	if s.Name == "" {
		return ErrEmptySlotName
	}
	if !IsValidSlotType(s.Type) {
		return fmt.Errorf("slot %q: %w: %q", s.Name, ErrInvalidSlotType, s.Type)
	}
	if s.Type == SlotTypeChoice && len(s.Choices) == 0 {
		return fmt.Errorf("slot %q: %w", s.Name, ErrMissingChoices)
	}
	if s.Condition != nil {
		if err := s.Condition.Validate(); err != nil {
			return fmt.Errorf("slot %q: %w", s.Name, err)
		}
	}
	return nil
}

// IsYesNo reports whether a choice slot is a binary whose stored value is
// canonicalized to "true"/"false".
func (s *SlotDefinition) IsYesNo() bool {
	if s.Type != SlotTypeChoice || len(s.Choices) != 2 {
		return false
	}
	first := strings.EqualFold(s.Choices[0], "ja") || strings.EqualFold(s.Choices[0], "yes")
	second := strings.EqualFold(s.Choices[1], "nein") || strings.EqualFold(s.Choices[1], "no")
	return first && second
}

// ResponseRecord is the stored answer for one slot.
type ResponseRecord struct {
	Value       string   `json:"value"`
	TargetField FieldRef `json:"target_field_name,omitempty"`
	Choices     []string `json:"choices,omitempty"`
	// Locked marks a slot whose condition was unmet at resolution time.
	// A locked record is never re-asked.
	Locked            bool   `json:"locked,omitempty"`
	CheckBoxCondition string `json:"check_box_condition,omitempty"`
}

// Answered reports whether the record holds a real user answer.
func (r ResponseRecord) Answered() bool {
	return !r.Locked && r.Value != ""
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a chat channel. Image carries
// the downloaded media bytes when the user sent a photo instead of text.
type Response struct {
	From     string `json:"from"`
	Body     string `json:"body"`
	Time     int64  `json:"time"`
	Image    []byte `json:"-"`
	MimeType string `json:"mime_type,omitempty"`
}

// TranscriptRole distinguishes the author of a transcript message.
type TranscriptRole string

const (
	TranscriptRoleUser      TranscriptRole = "user"
	TranscriptRoleAssistant TranscriptRole = "assistant"
)

// TranscriptMessage is one utterance of a dialogue, persisted in order.
type TranscriptMessage struct {
	SessionID string         `json:"session_id"`
	Role      TranscriptRole `json:"role"`
	Body      string         `json:"body"`
	Time      time.Time      `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
