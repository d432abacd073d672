package cron

import (
	"time"

	"github.com/Daskott/walkwithme/colors"
	"github.com/Daskott/walkwithme/server/logger"
	"github.com/go-co-op/gocron"
)

// NewScheduler returns a gocron scheduler running in timeZone. An unknown zone
// falls back to UTC.
func NewScheduler(timeZone string) *gocron.Scheduler {
	location, err := time.LoadLocation(timeZone)
	if err != nil {
		logger.Shared().Warnf(colors.Yellow("[cron] ")+"unknown time zone %q, using UTC", timeZone)
		location = time.UTC
	}

	scheduler := gocron.NewScheduler(location)
	scheduler.TagsUnique()
	return scheduler
}
