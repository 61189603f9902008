package contextutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogArgs(t *testing.T) {
	assert.Empty(t, LogArgs(context.Background()))

	ctx := WithSourceAndServiceValues(context.Background(), "127.0.0.1:5000", "echo")
	assert.Equal(t, []any{"source", "127.0.0.1:5000", "service", "echo"}, LogArgs(ctx))

	ctx = WithValues(context.Background(), ServiceTag, "metrics")
	assert.Equal(t, []any{"service", "metrics"}, LogArgs(ctx))
}

func TestWithValuesOddPairs(t *testing.T) {
	assert.Panics(t, func() {
		WithValues(context.Background(), SourceTag)
	})
}
