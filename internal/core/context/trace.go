package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext identifies a request across logs and spans.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// NewTraceContext builds a TraceContext from the ids at hand; the first
// non-empty trace id wins and a missing request id is generated.
func NewTraceContext(requestID, spanID string, traceIDs ...string) *TraceContext {
	tc := &TraceContext{SpanID: spanID, RequestID: requestID}
	for _, candidate := range traceIDs {
		if candidate != "" {
			tc.TraceID = candidate
			break
		}
	}
	if tc.RequestID == "" {
		tc.RequestID = uuid.NewString()
	}
	if tc.TraceID == "" {
		tc.TraceID = tc.RequestID
	}
	return tc
}
