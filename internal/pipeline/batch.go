package pipeline

import (
	"context"
	"runtime"
	"sync"
)

// RunBatch runs every image with at most jobs concurrent pipelines
// (GOMAXPROCS when jobs <= 0). Reports come back in input order; a failed
// image does not stop the batch.
func (p *Pipeline) RunBatch(ctx context.Context, paths []string, jobs int) []*Report {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	reports := make([]*Report, len(paths))
	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reports[i], _ = p.Run(ctx, path)
		}(i, path)
	}
	wg.Wait()

	failed := 0
	for _, r := range reports {
		if r.Final == StateFailed {
			failed++
		}
	}
	p.log.Info(component, "batch finished", map[string]interface{}{
		"images": len(paths),
		"failed": failed,
		"jobs":   jobs,
	})
	return reports
}
