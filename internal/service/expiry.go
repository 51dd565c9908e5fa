package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// RunSessionExpiry removes idle sessions on the configured cron schedule
// until ctx is done.
func (s *Service) RunSessionExpiry(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.config.SessionCleanupSchedule, func() {
		s.sweepExpiredSessions(ctx)
	}); err != nil {
		return fmt.Errorf("invalid session cleanup schedule %q: %w", s.config.SessionCleanupSchedule, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Service) sweepExpiredSessions(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.sessions.ExpireStaleSessions(sweepCtx, s.config.SessionTimeout)
	if err != nil {
		log.Printf("WARN: session expiry sweep failed: %v", err)
		return
	}
	s.metrics.AddSessionsExpired(n)
	if n > 0 {
		log.Printf("expired %d idle sessions", n)
	}
}
