package generalization

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/MetaNet-Generalizer/internal/domain/cluster"
)

// fanOut runs fn over every task with at most workers goroutines and joins
// before returning. Results are concatenated in task order so the merge is
// independent of scheduling.
func fanOut[T any](ctx context.Context, workers int, tasks []T,
	fn func(context.Context, T) ([]cluster.Assignment, error)) ([]cluster.Assignment, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([][]cluster.Assignment, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := fn(gctx, task)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var merged []cluster.Assignment
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
