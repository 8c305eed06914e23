package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/nextpost/internal/models"
)

type expiringAccounts interface {
	ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error)
}

type tokenRefresher interface {
	RefreshToken(ctx context.Context, sa *models.SocialAccount) error
}

// TokenRefreshJob renews credentials that expire within the window.
type TokenRefreshJob struct {
	sr          expiringAccounts
	accounts    tokenRefresher
	window      time.Duration
	concurrency int
	now         func() time.Time
}

func NewTokenRefreshJob(sr expiringAccounts, accounts tokenRefresher) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:          sr,
		accounts:    accounts,
		window:      30 * time.Minute,
		concurrency: 10,
		now:         time.Now,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	c.run(context.Background())
}

// run returns how many accounts were refreshed without error.
func (c *TokenRefreshJob) run(ctx context.Context) int {
	accounts, err := c.sr.ListExpiring(ctx, c.now().Add(c.window))
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	var wg sync.WaitGroup
	var refreshed atomic.Int32
	semaphore := make(chan struct{}, c.concurrency)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.accounts.RefreshToken(ctx, acc); err != nil {
				slog.Info("unable to refresh token", "account_id", acc.ID, "platform", acc.Platform, "error", err)
				return
			}
			refreshed.Add(1)
		}(acc)
	}
	wg.Wait()

	if len(accounts) > 0 {
		slog.Info("token refresh finished", "due", len(accounts), "refreshed", refreshed.Load())
	}
	return int(refreshed.Load())
}
