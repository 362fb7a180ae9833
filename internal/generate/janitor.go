package generate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper removes expired state.
type Sweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// Janitor runs a Sweeper on a fixed interval until closed.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewJanitor creates a janitor. A non-positive interval disables it: Start
// and Close become no-ops.
func NewJanitor(s Sweeper, interval time.Duration) *Janitor {
	timeout := interval
	if timeout <= 0 || timeout > time.Minute {
		timeout = time.Minute
	}
	return &Janitor{
		sweeper:  s,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. Calling it more than once has no effect.
func (j *Janitor) Start() {
	if j.interval <= 0 {
		return
	}
	j.startOnce.Do(func() {
		j.wg.Add(1)
		go j.run()
	})
}

// Close stops the loop and waits for an in-flight sweep to finish.
func (j *Janitor) Close() {
	j.closeOnce.Do(func() { close(j.done) })
	j.wg.Wait()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweepOnce()
		}
	}
}

func (j *Janitor) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.sweeper.Sweep(ctx)
	if err != nil {
		slog.Warn("Sweep failed", "error", err)
	}
	if result.ArtifactsRemoved > 0 || result.GenerationsRemoved > 0 {
		slog.Info("Sweep completed",
			"artifacts_removed", result.ArtifactsRemoved,
			"generations_removed", result.GenerationsRemoved)
	}
}
