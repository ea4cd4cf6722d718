package commands

import "context"

// Loader opens a dependency for one command run. The returned func releases it.
type Loader[T any] func(ctx context.Context) (T, func(), error)

func load[T any](ctx context.Context, l Loader[T]) (T, func(), error) {
	dep, release, err := l(ctx)
	if err != nil {
		var zero T
		return zero, nil, err
	}
	if release == nil {
		release = func() {}
	}
	return dep, release, nil
}
