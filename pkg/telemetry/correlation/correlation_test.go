package correlation

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationIDGeneratesULID(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	_, err := ulid.ParseStrict(cid)
	require.NoError(t, err)
	assert.Equal(t, cid, ExtractCorrelationID(ctx))
}

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "corr-1")
	_, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "corr-1", cid)
}

func TestContextWithRemoteSpan(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
	sc := trace.SpanContextFromContext(ctx)
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())

	same := ContextWithRemoteSpan(context.Background(), "bad", "00f067aa0ba902b7")
	assert.False(t, trace.SpanContextFromContext(same).IsValid())
}
