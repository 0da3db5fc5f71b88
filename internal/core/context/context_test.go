package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTraceContext(t *testing.T) {
	tc := NewTraceContext("req-1", "span-1", "", "otel-trace")
	assert.Equal(t, "req-1", tc.RequestID)
	assert.Equal(t, "span-1", tc.SpanID)
	assert.Equal(t, "otel-trace", tc.TraceID)

	tc = NewTraceContext("", "", "header-trace", "otel-trace")
	assert.Equal(t, "header-trace", tc.TraceID)
	assert.Len(t, tc.RequestID, 36)

	tc = NewTraceContext("", "")
	assert.Equal(t, tc.RequestID, tc.TraceID)
}

func TestCallerAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserID(ctx))
	assert.False(t, HasRole(ctx, "sequence_manager"))

	ctx = WithCaller(ctx, &CallerContext{
		UserID:    "u-1",
		CompanyID: "c-1",
		Timezone:  "Europe/Paris",
		Roles:     []string{"sequence_manager"},
	})
	assert.Equal(t, "u-1", GetUserID(ctx))
	assert.Equal(t, "c-1", GetCompanyID(ctx))
	assert.Equal(t, "Europe/Paris", GetTimezone(ctx))
	assert.True(t, HasRole(ctx, "sequence_manager"))
	assert.False(t, HasRole(ctx, "admin"))
}
