package analyzer

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type callLimitKey struct{}

// WithCallLimit bounds the provider calls made under ctx by a shared semaphore.
// Every attempt of every call holds one slot while it is in flight.
func WithCallLimit(ctx context.Context, sem *semaphore.Weighted) context.Context {
	if sem == nil {
		return ctx
	}
	return context.WithValue(ctx, callLimitKey{}, sem)
}

func acquireCall(ctx context.Context) (func(), error) {
	sem, ok := ctx.Value(callLimitKey{}).(*semaphore.Weighted)
	if !ok {
		return func() {}, nil
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
