package pipeline

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"

	"txguard/internal/model"
	"txguard/internal/normalize"
)

// Pipeline fans transactions out to a fixed set of workers. All transactions
// of a user hash to the same worker, so they are evaluated in arrival order
// while different users run in parallel.
type Pipeline struct {
	proc    *Processor
	workers int
	queue   int
	logger  *slog.Logger
}

func New(proc *Processor, workers, queue int, logger *slog.Logger) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1
	}
	return &Pipeline{proc: proc, workers: workers, queue: queue, logger: logger}
}

// Run consumes in until it is closed or ctx ends, then lets the workers drain
// what they already hold and returns.
func (p *Pipeline) Run(ctx context.Context, in <-chan *normalize.Fields) {
	shards := make([]chan *normalize.Fields, p.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan *normalize.Fields, p.queue)
		wg.Add(1)
		go func(ch <-chan *normalize.Fields) {
			defer wg.Done()
			p.work(context.WithoutCancel(ctx), ch)
		}(shards[i])
	}
	if p.logger != nil {
		p.logger.Info("pipeline started", "workers", p.workers, "worker_queue", p.queue)
	}

	p.dispatch(ctx, in, shards)

	for _, ch := range shards {
		close(ch)
	}
	wg.Wait()
	if p.logger != nil {
		p.logger.Info("pipeline stopped")
	}
}

func (p *Pipeline) dispatch(ctx context.Context, in <-chan *normalize.Fields, shards []chan *normalize.Fields) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-in:
			if !ok {
				return
			}
			shard := shards[shardFor(userKey(f), len(shards))]
			select {
			case shard <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) work(ctx context.Context, in <-chan *normalize.Fields) {
	for f := range in {
		p.proc.Process(ctx, f)
	}
}

func userKey(f *normalize.Fields) string {
	if f == nil {
		return ""
	}
	v, _ := f.Value(model.FieldUserID)
	return strings.TrimSpace(v)
}

func shardFor(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
