package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
)

// MockClient is a scripted ClientInterface implementation for tests. Text
// responses and structured payloads are consumed in FIFO order; when a queue
// runs dry the zero value ("" or {}) is returned.
type MockClient struct {
	mu sync.Mutex

	TextResponses      []string
	StructuredPayloads []string
	Err                error

	// Calls records every request for assertions, in order.
	Calls []MockCall
}

// MockCall captures one request made against the mock.
type MockCall struct {
	Structured bool
	SchemaName string
	Messages   []openai.ChatCompletionMessageParamUnion
}

// NewMockClient creates a mock that answers every text request with the given
// responses in order.
func NewMockClient(textResponses ...string) *MockClient {
	return &MockClient{TextResponses: textResponses}
}

// GenerateWithMessages pops the next scripted text response.
func (m *MockClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Messages: messages})
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.TextResponses) == 0 {
		return "", nil
	}
	next := m.TextResponses[0]
	m.TextResponses = m.TextResponses[1:]
	return next, nil
}

// GenerateStructured pops the next scripted JSON payload and unmarshals it.
func (m *MockClient) GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, schemaName string, schema map[string]interface{}, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Structured: true, SchemaName: schemaName, Messages: messages})
	if m.Err != nil {
		return m.Err
	}
	payload := "{}"
	if len(m.StructuredPayloads) > 0 {
		payload = m.StructuredPayloads[0]
		m.StructuredPayloads = m.StructuredPayloads[1:]
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("MockClient.GenerateStructured: bad scripted payload: %w", err)
	}
	return nil
}

// CallCount returns how many requests the mock has served.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
