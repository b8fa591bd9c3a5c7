package builder

import (
	"context"

	"golang.org/x/sync/errgroup"

	"bernet/pkg/netdef"
)

// Result is the outcome of checking one document.
type Result struct {
	Path    string
	Network *Network
	Err     error
}

// CheckAll plans every document in paths with at most limit running at once
// (limit <= 0 means unbounded). Results follow the order of paths; a failing
// document does not stop the others.
func (b *Builder) CheckAll(ctx context.Context, paths []string, limit int) []Result {
	results := make([]Result, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, p := range paths {
		g.Go(func() error {
			results[i] = b.check(gctx, p)
			return nil
		})
	}
	_ = g.Wait() // errors captured in Result.Err
	return results
}

func (b *Builder) check(ctx context.Context, path string) Result {
	r := Result{Path: path}
	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}
	m, err := netdef.LoadFile(path)
	if err != nil {
		r.Err = err
		return r
	}
	r.Network, r.Err = b.Plan(m)
	if r.Err != nil {
		b.logger.DebugContext(ctx, "document rejected", "path", path, "violations", len(netdef.Violations(r.Err)))
	}
	return r
}
