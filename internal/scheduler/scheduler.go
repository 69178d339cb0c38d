// Package scheduler runs the periodic background jobs of the server.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Expirer deactivates challenges whose end date has passed.
type Expirer interface {
	ExpireChallenges(ctx context.Context) (int64, error)
}

// Scheduler manages scheduled tasks for the application.
type Scheduler struct {
	scheduler *gocron.Scheduler
	expirer   Expirer
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a scheduler that expires challenges every interval.
func New(expirer Expirer, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A slow run must not overlap the next one.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		expirer:   expirer,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// Start registers the jobs and begins running them in the background. The
// first expiry run happens immediately.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.expireChallenges); err != nil {
		return fmt.Errorf("scheduler: registering expiry job: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", slog.Duration("expiryInterval", s.interval))
	return nil
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return s.scheduler.Len()
}

func (s *Scheduler) expireChallenges() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.expirer.ExpireChallenges(ctx)
	if err != nil {
		s.logger.Error("expiring challenges failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("expiry run finished", slog.Int64("expired", n))
}
