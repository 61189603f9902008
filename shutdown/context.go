package shutdown

import (
	"context"
)

type reasonKey struct{}

// ReasonFromContext returns the trigger of the drain running the action which received ctx.
func ReasonFromContext(ctx context.Context) (Reason, bool) {
	reason, ok := ctx.Value(reasonKey{}).(Reason)
	return reason, ok
}

func withReason(ctx context.Context, reason Reason) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}
