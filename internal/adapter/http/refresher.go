package http

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// StartRefresher refreshes the dashboard cache on a standard five-field cron
// schedule until the returned scheduler is stopped.
func (d *Dashboard) StartRefresher(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { d.Refresh(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid DASHBOARD_REFRESH_CRON %q: %w", schedule, err)
	}
	c.Start()
	d.logger.Info("dashboard refresher started", "schedule", schedule)
	return c, nil
}
