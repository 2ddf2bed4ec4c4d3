package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper schedules a periodic maintenance function on a cron expression.
type Sweeper struct {
	cron *cron.Cron
}

// NewSweeper registers fn to run on the given cron expression (standard
// 5-field format). The sweep is bounded by timeout per invocation.
func NewSweeper(expr string, timeout time.Duration, fn func(ctx context.Context) error) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}

	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			slog.Warn("scheduled sweep failed", "error", err)
		}
	}))

	return &Sweeper{cron: c}, nil
}

// Start launches the scheduler in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("sweep scheduler started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
