// Package janitor runs the periodic housekeeping jobs owned by the process:
// expired cache entries and idle rate-limit buckets.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor schedules named sweep jobs at fixed intervals.
type Janitor struct {
	mu      sync.Mutex
	c       *cron.Cron
	jobs    map[string]cron.EntryID
	funcs   map[string]func()
	started bool
}

// New creates a stopped janitor. Panicking jobs are recovered and logged.
func New() *Janitor {
	logger := zapCronLogger{}
	return &Janitor{
		c:     cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		jobs:  make(map[string]cron.EntryID),
		funcs: make(map[string]func()),
	}
}

// Every registers fn to run every interval. Intervals under a second are
// rounded up to one second. Registering a name twice replaces the earlier job.
func (j *Janitor) Every(name string, interval time.Duration, fn func()) {
	if interval < time.Second {
		interval = time.Second
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if id, ok := j.jobs[name]; ok {
		j.c.Remove(id)
	}
	job := cron.FuncJob(func() {
		start := time.Now()
		fn()
		zap.L().Debug("janitor job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	j.jobs[name] = j.c.Schedule(cron.Every(interval), job)
	j.funcs[name] = fn
}

// RunNow executes the named job synchronously. Returns false for unknown names.
func (j *Janitor) RunNow(name string) bool {
	j.mu.Lock()
	fn, ok := j.funcs[name]
	j.mu.Unlock()
	if !ok {
		return false
	}
	fn()
	return true
}

// Jobs returns the registered job names and their next run times.
func (j *Janitor) Jobs() map[string]time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(map[string]time.Time, len(j.jobs))
	for name, id := range j.jobs {
		out[name] = j.c.Entry(id).Next
	}
	return out
}

// Start begins running jobs in the background. Calling Start twice is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.c.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	j.mu.Unlock()

	done := j.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		zap.L().Warn("janitor stop timed out waiting for jobs")
	}
}

// zapCronLogger adapts the global zap logger to cron.Logger.
type zapCronLogger struct{}

func (zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
