// Package janitor runs a periodic maintenance function on a background
// goroutine until its context is cancelled or Stop is called.
package janitor

import (
	"context"
	"sync"
	"time"
)

// Janitor owns one ticker loop.
type Janitor struct {
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Start launches task every interval. The first run happens after one
// interval has elapsed. A non-positive interval returns a stopped Janitor.
func Start(ctx context.Context, interval time.Duration, task func()) *Janitor {
	j := &Janitor{}
	if interval <= 0 || task == nil {
		j.cancel = func() {}
		return j
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.run(ctx, interval, task)
	return j
}

func (j *Janitor) run(ctx context.Context, interval time.Duration, task func()) {
	defer j.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task()
		}
	}
}

// Stop cancels the loop and waits for an in-flight run to finish.
// It is safe to call more than once and on a nil Janitor.
func (j *Janitor) Stop() {
	if j == nil {
		return
	}
	j.stopOnce.Do(func() {
		j.cancel()
		j.wg.Wait()
	})
}
