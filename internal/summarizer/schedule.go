package summarizer

import (
	"context"
	"fmt"
	"time"

	"github.com/Skyhug-AI/skyhug-backend/internal/logging"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedule runs CloseInactive once immediately and then every interval until
// ctx is cancelled. A failing or panicking run is logged and the next run
// still fires; overlapping runs are skipped.
func (s *Service) Schedule(ctx context.Context, interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("summarizer: schedule interval %s is below one second", interval)
	}

	cl := logging.CronLogger(s.log)
	c := cron.New(cron.WithLogger(cl))
	// Recover sits inside SkipIfStillRunning so a panic still releases the
	// run token.
	job := cron.NewChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)).
		Then(cron.FuncJob(func() { s.runCleanup(ctx, interval) }))

	c.Schedule(cron.Every(interval), job)
	job.Run()
	c.Start()
	s.log.Info("cleanup scheduled", zap.Duration("interval", interval))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Service) runCleanup(ctx context.Context, interval time.Duration) {
	if ctx.Err() != nil {
		return
	}
	if err := s.CloseInactive(ctx, interval); err != nil {
		s.log.Error("cleanup run failed", zap.Error(err))
	}
}
