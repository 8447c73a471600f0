package lottery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pixelevents/pkg/logger"
)

// JobProcessor polls for scheduled draws and runs the due ones. Draws that
// fell due while the process was down run on the first poll after Start.
type JobProcessor struct {
	service Service
	config  *JobConfig
	log     *logger.Logger

	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	running atomic.Bool

	mu        sync.Mutex
	lastRun   time.Time
	lastCount int
	lastErr   error
	totalRun  int
}

type JobConfig struct {
	PollInterval time.Duration
}

func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		PollInterval: 30 * time.Second,
	}
}

func NewJobProcessor(service Service, log *logger.Logger, config *JobConfig) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &JobProcessor{
		service: service,
		config:  config,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start launches the poller once; later calls are no-ops
func (jp *JobProcessor) Start(ctx context.Context) {
	if !jp.running.CompareAndSwap(false, true) {
		return
	}

	jp.wg.Add(1)
	go jp.poll(ctx)
	jp.log.Info("Lottery scheduler started", "interval", jp.config.PollInterval.String())
}

// Stop ends the poller and waits for a draw in progress to finish
func (jp *JobProcessor) Stop() {
	jp.stop.Do(func() {
		close(jp.done)
		jp.wg.Wait()
		jp.log.Info("Lottery scheduler stopped")
	})
}

func (jp *JobProcessor) poll(ctx context.Context) {
	defer jp.wg.Done()
	defer jp.running.Store(false)

	ticker := time.NewTicker(jp.config.PollInterval)
	defer ticker.Stop()

	for {
		jp.runDueDraws(ctx)

		select {
		case <-ticker.C:
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) runDueDraws(ctx context.Context) {
	processed, err := jp.service.RunDueDraws(ctx)

	jp.mu.Lock()
	jp.lastRun = time.Now().UTC()
	jp.lastCount = processed
	jp.lastErr = err
	jp.totalRun += processed
	jp.mu.Unlock()

	if err != nil {
		jp.log.ErrorWithContext(ctx, "Error running scheduled draws", err, nil)
		return
	}
	if processed > 0 {
		jp.log.InfoWithContext(ctx, "Ran scheduled draws", map[string]interface{}{"processed": processed})
	}
}

// GetJobStatus reports whether the poller runs and what its last poll did
func (jp *JobProcessor) GetJobStatus() map[string]interface{} {
	status := "stopped"
	if jp.running.Load() {
		status = "running"
	}

	jp.mu.Lock()
	defer jp.mu.Unlock()

	result := map[string]interface{}{
		"poll_interval":   jp.config.PollInterval.String(),
		"status":          status,
		"draws_completed": jp.totalRun,
	}
	if !jp.lastRun.IsZero() {
		result["last_poll_at"] = jp.lastRun
		result["last_poll_draws"] = jp.lastCount
	}
	if jp.lastErr != nil {
		result["last_error"] = jp.lastErr.Error()
	}
	return result
}
