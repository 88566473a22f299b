package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StartSweeper runs RefreshOverdue on the cron spec (e.g. "@daily" or
// "0 1 * * *") in loc. Stop the returned scheduler on shutdown.
func StartSweeper(svc *Service, spec string, loc *time.Location, log *logrus.Logger) (*cron.Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := svc.RefreshOverdue(ctx); err != nil {
			log.WithError(err).Error("overdue sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid OVERDUE_CRON %q: %w", spec, err)
	}
	c.Start()
	log.WithField("schedule", spec).Info("overdue sweeper started")
	return c, nil
}
