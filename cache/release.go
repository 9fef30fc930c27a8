package cache

import (
	"sync"

	"go.uber.org/atomic"
)

// releaseJob is one unit of deferred teardown: either an explicit batch of
// detached entries or a whole arena detached by Clear, whose O(n) walk is
// deliberately postponed to the worker.
type releaseJob struct {
	batch []released
	arena *detachedArena
}

// releasePool hands evicted payloads to background workers so expensive
// teardown and OnRelease callbacks never run on a caller's goroutine.
//
// Shape: a bounded channel of jobs, a fixed worker set, a stop channel and
// a WaitGroup for shutdown. Ordering across jobs is unspecified; release is
// a fire-and-forget concern.
type releasePool struct {
	jobs      chan releaseJob
	onRelease func(key string, value any, cost int64)
	failures  *atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func newReleasePool(workers, depth int, onRelease func(string, any, int64), failures *atomic.Int64) *releasePool {
	p := &releasePool{
		jobs:      make(chan releaseJob, depth),
		onRelease: onRelease,
		failures:  failures,
		stop:      make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *releasePool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			// Drain what is already queued so callbacks are not lost at
			// shutdown.
			for {
				select {
				case job := <-p.jobs:
					p.process(job)
				default:
					return
				}
			}
		case job := <-p.jobs:
			p.process(job)
		}
	}
}

// submit enqueues a job. When the queue is full the job runs on a one-off
// goroutine instead: release must never block an eviction path and the
// callbacks must not be dropped.
func (p *releasePool) submit(job releaseJob) {
	select {
	case p.jobs <- job:
	default:
		go p.process(job)
	}
}

// shutdown stops the workers, then sweeps any job that slipped into the
// queue during the stop. Safe to call more than once.
func (p *releasePool) shutdown() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	for {
		select {
		case job := <-p.jobs:
			p.process(job)
		default:
			return
		}
	}
}

func (p *releasePool) process(job releaseJob) {
	if p.onRelease == nil {
		// Nothing observes the payloads; dropping the references is all the
		// release there is.
		return
	}
	batch := job.batch
	if job.arena != nil {
		batch = job.arena.drain()
	}
	releaseBatch(batch, p.onRelease, p.failures)
}

// releaseBatch runs the teardown callback for each entry, isolating panics
// so one bad value cannot take down a worker or starve later trims. Shared
// by the pool and by the synchronous-release path.
func releaseBatch(batch []released, onRelease func(string, any, int64), failures *atomic.Int64) {
	if onRelease == nil {
		return
	}
	for _, r := range batch {
		releaseOne(r, onRelease, failures)
	}
}

func releaseOne(r released, onRelease func(string, any, int64), failures *atomic.Int64) {
	defer func() {
		if recover() != nil {
			failures.Inc()
		}
	}()
	onRelease(r.key, r.value, r.cost)
}
