package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
)

// runner owns the start/stop lifecycle shared by the workers
type runner struct {
	name    string
	log     *logger.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func newRunner(name string) *runner {
	return &runner{
		name:   name,
		log:    logger.Get(),
		stopCh: make(chan struct{}),
	}
}

// start launches one goroutine per loop
func (r *runner) start(ctx context.Context, loops ...func(ctx context.Context)) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("%s already running", r.name)
	}
	r.running = true
	r.mu.Unlock()

	r.log.Info(fmt.Sprintf("Starting %s", r.name))

	for _, loop := range loops {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			loop(ctx)
		}()
	}
	return nil
}

func (r *runner) stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.Info(fmt.Sprintf("Stopping %s", r.name))
	close(r.stopCh)
	r.wg.Wait()
	r.log.Info(fmt.Sprintf("%s stopped", r.name))
}

func (r *runner) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// every runs fn immediately and then on each tick until ctx is done or the runner stops
func (r *runner) every(interval time.Duration, fn func(ctx context.Context)) func(ctx context.Context) {
	return func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}
}

// stopping reports whether a drain loop should give up early
func (r *runner) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-r.stopCh:
		return true
	default:
		return false
	}
}
