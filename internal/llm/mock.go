package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of Client. Options are not part of the
// recorded arguments, so expectations match on context and prompt only.
type MockClient struct {
	mock.Mock
}

// NewMockClient creates a mock that asserts its expectations at test cleanup
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Generate records the call
func (m *MockClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	args := m.Called(ctx, prompt)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

// Chat records the call
func (m *MockClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	args := m.Called(ctx, messages)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

// Name returns a fixed model name
func (m *MockClient) Name() string {
	return "mock-model"
}
