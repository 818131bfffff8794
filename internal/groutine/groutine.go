// Package groutine starts named goroutines so long-lived radio pumps show
// up with readable labels in pprof dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go starts a goroutine labeled with name. If parentCtx is nil,
// context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, fn)
}
