package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// sweepTimeout bounds a single DeleteExpired pass.
const sweepTimeout = 2 * time.Minute

// Sweeper deletes expired refresh credentials once at start and then on a fixed interval.
//
// Deletion is strictly time based: revoked but unexpired rows are kept.
// A failing or panicking run is logged and never stops the schedule.
type Sweeper struct {
	creds    *Credentials
	interval time.Duration
	log      *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	mu    sync.Mutex
	cron  *cron.Cron
	stop  context.CancelFunc
	first sync.WaitGroup
}

// NewSweeper builds a Sweeper over creds.
func NewSweeper(creds *Credentials, interval time.Duration, log *slog.Logger, m *Metrics) (*Sweeper, error) {
	if creds == nil {
		return nil, fmt.Errorf("%w: nil credentials", ErrConfig)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: sweep interval must be positive", ErrConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		creds:    creds,
		interval: interval,
		log:      log,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunOnce deletes every credential that expired before now and logs the count.
func (s *Sweeper) RunOnce(ctx context.Context) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
			s.metrics.sweepFailed()
			s.log.Error("sweep.panic", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	started := s.now()
	n, err = s.creds.DeleteExpired(ctx, started)
	if err != nil {
		s.metrics.sweepFailed()
		s.log.Error("sweep.fail", "err", err)
		return 0, err
	}

	s.metrics.swept(n)
	s.log.Info("sweep.run", "deleted", n, "duration_ms", time.Since(started).Milliseconds())
	return n, nil
}

// Start runs one pass immediately and schedules the rest. It returns once the
// schedule is installed; the first pass runs in the background. Calling Start on a
// running Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{log: s.log}

	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { _, _ = s.RunOnce(runCtx) }))

	c := cron.New(cron.WithLogger(logger))
	c.Schedule(cron.Every(s.interval), job)

	s.cron = c
	s.stop = cancel

	s.first.Add(1)
	go func() {
		defer s.first.Done()
		job.Run()
	}()
	c.Start()

	s.log.Info("sweep.scheduled", "interval", s.interval.String())
}

// Stop cancels pending work and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.stop
	s.cron, s.stop = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.first.Wait()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("sweep.cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("sweep.cron."+msg, append(keysAndValues, "err", err)...)
}
