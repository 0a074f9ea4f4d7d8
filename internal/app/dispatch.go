package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Job is one side effect scheduled after a committed mutation.
type Job struct {
	Name string
	Run  func(context.Context) error
}

// Dispatcher schedules side-effect jobs. Jobs sharing a key run in submission order.
type Dispatcher interface {
	Dispatch(ctx context.Context, key string, job Job) error
}

// DispatcherConfig holds retry and sizing settings for a KeyedDispatcher.
type DispatcherConfig struct {
	Lanes        int
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultDispatcherConfig returns the dispatcher defaults used by the runtime.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Lanes:        4,
		QueueSize:    256,
		MaxAttempts:  5,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// keyedJob pairs a job with the context it was submitted under.
type keyedJob struct {
	ctx context.Context
	key string
	job Job
}

// KeyedDispatcher runs jobs on a fixed set of lanes. A key always hashes to the
// same lane, so jobs for one item never overtake each other.
type KeyedDispatcher struct {
	cfg   DispatcherConfig
	lanes []chan keyedJob
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewKeyedDispatcher starts the lane workers.
func NewKeyedDispatcher(cfg DispatcherConfig) *KeyedDispatcher {
	cfg = normalizeDispatcherConfig(cfg)
	d := &KeyedDispatcher{
		cfg:   cfg,
		lanes: make([]chan keyedJob, cfg.Lanes),
	}
	for i := range d.lanes {
		d.lanes[i] = make(chan keyedJob, cfg.QueueSize)
		d.wg.Add(1)
		go d.runLane(d.lanes[i])
	}
	return d
}

// Dispatch enqueues job on the lane owning key. The job context keeps the
// values of ctx but is never cancelled with it.
func (d *KeyedDispatcher) Dispatch(ctx context.Context, key string, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("dispatch %q: nil job", job.Name)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.lanes[d.laneFor(key)] <- keyedJob{
		ctx: context.WithoutCancel(ctx),
		key: key,
		job: job,
	}
	return nil
}

// Close stops intake and waits for queued jobs to drain or ctx to end.
func (d *KeyedDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, lane := range d.lanes {
			close(lane)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// laneFor maps key onto a lane index.
func (d *KeyedDispatcher) laneFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.lanes)))
}

// runLane executes lane jobs sequentially until the lane is closed.
func (d *KeyedDispatcher) runLane(lane <-chan keyedJob) {
	defer d.wg.Done()
	for kj := range lane {
		if err := runWithRetry(kj.ctx, kj.job, d.cfg.MaxAttempts, d.cfg.RetryBackoff); err != nil {
			log.Error("fan-out job failed", "job", kj.job.Name, "key", kj.key, "attempts", d.cfg.MaxAttempts, "err", err)
		}
	}
}

// InlineDispatcher runs jobs synchronously on the calling goroutine.
type InlineDispatcher struct {
	MaxAttempts int
}

// Dispatch runs job immediately, retrying without delay. Failures are logged.
func (d InlineDispatcher) Dispatch(ctx context.Context, key string, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("dispatch %q: nil job", job.Name)
	}
	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if err := runWithRetry(context.WithoutCancel(ctx), job, attempts, 0); err != nil {
		log.Error("fan-out job failed", "job", job.Name, "key", key, "attempts", attempts, "err", err)
	}
	return nil
}

// runWithRetry runs job up to attempts times with exponential backoff.
func runWithRetry(ctx context.Context, job Job, attempts int, backoff time.Duration) error {
	var errs []error
	delay := backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		err := job.Run(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
		if attempt == attempts {
			break
		}
		if delay > 0 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return errors.Join(errs...)
}

// normalizeDispatcherConfig fills zero fields with defaults.
func normalizeDispatcherConfig(cfg DispatcherConfig) DispatcherConfig {
	def := DefaultDispatcherConfig()
	if cfg.Lanes <= 0 {
		cfg.Lanes = def.Lanes
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	return cfg
}
