package job

import (
	"github.com/robfig/cron"
)

const (
	TokenRefreshSpec        = "@every 10m"
	ScheduledValidationSpec = "@hourly"
	FailedCleanupSpec       = "@daily"
	StalePublishingSpec     = "@every 5m"
)

type Jobs struct {
	TokenRefresh        *TokenRefreshJob
	ScheduledValidation *ScheduledValidationJob
	FailedCleanup       *FailedCleanupJob
	StalePublishing     *StalePublishingJob
}

// NewCron registers every job on a stopped cron runner.
func NewCron(j Jobs) (*cron.Cron, error) {
	c := cron.New()
	if err := c.AddFunc(TokenRefreshSpec, j.TokenRefresh.RefreshTokens); err != nil {
		return nil, err
	}
	if err := c.AddFunc(ScheduledValidationSpec, j.ScheduledValidation.ValidateScheduledPosts); err != nil {
		return nil, err
	}
	if err := c.AddFunc(FailedCleanupSpec, j.FailedCleanup.ReportFailedPosts); err != nil {
		return nil, err
	}
	if err := c.AddFunc(StalePublishingSpec, j.StalePublishing.RecoverStalePosts); err != nil {
		return nil, err
	}
	return c, nil
}
