package contextutil

import (
	"context"
)

type tag string

const (
	SourceTag  tag = "source"
	ServiceTag tag = "service"
)

func WithSourceAndServiceValues(ctx context.Context, sourceAddr, service string) context.Context {
	return WithValues(ctx, SourceTag, sourceAddr, ServiceTag, service)
}

func WithValues(ctx context.Context, kv ...any) context.Context {
	if len(kv)%2 != 0 {
		panic("odd numbers of key-value pairs")
	}
	for i := range len(kv) / 2 {
		ctx = context.WithValue(ctx, kv[i*2], kv[i*2+1])
	}
	return ctx
}

// LogArgs returns the source and service values of ctx as slog key-value pairs.
func LogArgs(ctx context.Context) []any {
	var args []any
	for _, t := range []tag{SourceTag, ServiceTag} {
		if v := ctx.Value(t); v != nil {
			args = append(args, string(t), v)
		}
	}
	return args
}
