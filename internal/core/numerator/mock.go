package numerator

import (
	"context"

	"seqnum/internal/core/id"
)

// MockGenerator is a test implementation of Generator.
// Use in handler tests to avoid storage dependencies.
type MockGenerator struct {
	NextByCodeFunc func(ctx context.Context, call CallContext, code string) (string, bool, error)
	NextByIDFunc   func(ctx context.Context, call CallContext, seqID id.ID) (string, error)
}

// NextByCode implements Generator.
func (m *MockGenerator) NextByCode(ctx context.Context, call CallContext, code string) (string, bool, error) {
	if m.NextByCodeFunc != nil {
		return m.NextByCodeFunc(ctx, call, code)
	}
	return "MOCK-00001", true, nil
}

// NextByID implements Generator.
func (m *MockGenerator) NextByID(ctx context.Context, call CallContext, seqID id.ID) (string, error) {
	if m.NextByIDFunc != nil {
		return m.NextByIDFunc(ctx, call, seqID)
	}
	return "MOCK-00001", nil
}

// Ensure compile-time interface compliance.
var _ Generator = (*MockGenerator)(nil)
