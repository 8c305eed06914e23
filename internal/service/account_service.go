package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/models"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/publisher"
	"github.com/maheshrc27/nextpost/internal/repository"
	"github.com/maheshrc27/nextpost/internal/transfer"
)

type AccountService interface {
	AuthURL(ctx context.Context, kind platform.Kind, state string) (string, error)
	ConnectAccount(ctx context.Context, userID int64, kind platform.Kind, code, redirectURI string) ([]*models.SocialAccount, error)
	ListAccounts(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	SetActive(ctx context.Context, userID, accountID int64, active bool) (*models.SocialAccount, error)
	ToggleActive(ctx context.Context, userID, accountID int64) (*models.SocialAccount, error)
	Disconnect(ctx context.Context, userID, accountID int64) error
	RemoveAccount(ctx context.Context, userID, accountID int64) error
	Capabilities(ctx context.Context, userID, accountID int64) (*transfer.AccountCapabilities, error)
	PlatformStats(ctx context.Context, userID int64) ([]models.PlatformStats, error)
	TestConnection(ctx context.Context, userID, accountID int64) (*transfer.ConnectionTest, error)
	RefreshToken(ctx context.Context, sa *models.SocialAccount) error
}

type accountService struct {
	cfg        config.Config
	sa         repository.SocialAccountRepository
	publishers PublisherRegistry
}

func NewAccountService(cfg config.Config, sa repository.SocialAccountRepository, publishers PublisherRegistry) AccountService {
	return &accountService{
		cfg:        cfg,
		sa:         sa,
		publishers: publishers,
	}
}

func (s *accountService) AuthURL(ctx context.Context, kind platform.Kind, state string) (string, error) {
	p, err := s.publishers.For(kind)
	if err != nil {
		return "", err
	}
	builder, ok := p.(publisher.AuthURLBuilder)
	if !ok {
		return "", &publisher.UnsupportedPlatformError{Platform: kind}
	}
	return builder.AuthURL(kind, state), nil
}

// ConnectAccount exchanges the consent code and links every target of the
// requested kind the credential can publish to.
func (s *accountService) ConnectAccount(ctx context.Context, userID int64, kind platform.Kind, code, redirectURI string) ([]*models.SocialAccount, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id is not valid", ErrInvalidInput)
	}
	p, err := s.publishers.For(kind)
	if err != nil {
		return nil, err
	}

	cred, err := p.ExchangeCodeForToken(ctx, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("error exchanging code: %w", err)
	}
	targets, err := p.ListPublishableTargets(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("error listing targets: %w", err)
	}

	var linked []*models.SocialAccount
	for _, t := range targets {
		if t.Kind != kind {
			continue
		}

		targetCred := *cred
		if t.AccessToken != "" {
			targetCred.AccessToken = t.AccessToken
		}
		sa := &models.SocialAccount{
			UserID:         userID,
			Platform:       t.Kind,
			PlatformUserID: t.ID,
			Username:       t.Username,
			ProfilePicture: t.ProfilePicture,
			LinkedPageID:   t.LinkedPageID,
		}
		if sa.Username == "" {
			sa.Username = t.Name
		}
		if err := sealCredential(sa, &targetCred, []byte(s.cfg.SecretKey)); err != nil {
			return nil, err
		}

		id, err := s.sa.Upsert(ctx, nil, sa)
		if err != nil {
			return nil, fmt.Errorf("error saving account: %w", err)
		}
		sa.ID = id
		sa.IsActive = true
		linked = append(linked, sa)
		slog.Info("social account linked", "user_id", userID, "platform", kind, "account_id", id)
	}

	if len(linked) == 0 {
		return nil, fmt.Errorf("no %s target available for this login: %w", kind.DisplayName(), ErrNotFound)
	}
	return linked, nil
}

func (s *accountService) ListAccounts(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	accounts, err := s.sa.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting social accounts: %w", err)
	}
	return accounts, nil
}

func (s *accountService) SetActive(ctx context.Context, userID, accountID int64, active bool) (*models.SocialAccount, error) {
	sa, err := s.owned(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.sa.SetActive(ctx, sa.ID, active); err != nil {
		return nil, fmt.Errorf("error updating account: %w", err)
	}
	sa.IsActive = active
	return sa, nil
}

func (s *accountService) ToggleActive(ctx context.Context, userID, accountID int64) (*models.SocialAccount, error) {
	sa, err := s.owned(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return s.SetActive(ctx, userID, accountID, !sa.IsActive)
}

func (s *accountService) Disconnect(ctx context.Context, userID, accountID int64) error {
	_, err := s.SetActive(ctx, userID, accountID, false)
	return err
}

func (s *accountService) RemoveAccount(ctx context.Context, userID, accountID int64) error {
	sa, err := s.owned(ctx, userID, accountID)
	if err != nil {
		return err
	}
	s.revoke(ctx, sa)
	if err := s.sa.Remove(ctx, sa.ID); err != nil {
		return fmt.Errorf("error removing account: %w", err)
	}
	return nil
}

func (s *accountService) Capabilities(ctx context.Context, userID, accountID int64) (*transfer.AccountCapabilities, error) {
	sa, err := s.owned(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	_, unsupported := s.publishers.For(sa.Platform)
	return &transfer.AccountCapabilities{
		AccountID:   sa.ID,
		Platform:    sa.Platform,
		DisplayName: sa.Platform.DisplayName(),
		Publishable: unsupported == nil,
		Rules:       platform.RulesFor(sa.Platform),
	}, nil
}

func (s *accountService) PlatformStats(ctx context.Context, userID int64) ([]models.PlatformStats, error) {
	stats, err := s.sa.StatsByPlatform(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting platform stats: %w", err)
	}
	return stats, nil
}

// TestConnection calls the platform with the stored credential. A rejected
// credential deactivates the account.
func (s *accountService) TestConnection(ctx context.Context, userID, accountID int64) (*transfer.ConnectionTest, error) {
	sa, err := s.owned(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	p, err := s.publishers.For(sa.Platform)
	if err != nil {
		return nil, err
	}
	tester, ok := p.(publisher.ConnectionTester)
	if !ok {
		return nil, &publisher.UnsupportedPlatformError{Platform: sa.Platform}
	}

	cred, err := openCredential(sa, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	details, err := tester.TestConnection(ctx, cred)
	if err != nil {
		var authErr *publisher.AuthError
		if errors.As(err, &authErr) {
			if err := s.sa.SetActive(ctx, sa.ID, false); err != nil {
				slog.Error("error deactivating account", "account_id", sa.ID, "error", err)
			}
		}
		return &transfer.ConnectionTest{OK: false, Error: err.Error()}, nil
	}
	return &transfer.ConnectionTest{OK: true, Details: details}, nil
}

// RefreshToken renews the credential of sa when its adapter supports it.
// An AuthError deactivates the account; ErrStaleToken means another
// refresher won and is not an error.
func (s *accountService) RefreshToken(ctx context.Context, sa *models.SocialAccount) error {
	p, err := s.publishers.For(sa.Platform)
	if err != nil {
		return err
	}
	refresher, ok := p.(publisher.TokenRefresher)
	if !ok {
		return nil
	}

	cred, err := openCredential(sa, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	fresh, err := refresher.RefreshToken(ctx, cred)
	if err != nil {
		var authErr *publisher.AuthError
		if errors.As(err, &authErr) {
			slog.Warn("token refresh rejected, deactivating account", "account_id", sa.ID, "platform", sa.Platform, "error", err)
			if err := s.sa.SetActive(ctx, sa.ID, false); err != nil {
				return fmt.Errorf("error deactivating account %d: %w", sa.ID, err)
			}
			return nil
		}
		return fmt.Errorf("error refreshing token of account %d: %w", sa.ID, err)
	}
	if fresh.ExpiresAt.IsZero() {
		fresh.ExpiresAt = time.Now().Add(publisher.LongLivedTokenTTL)
	}

	oldAccessToken := sa.AccessToken
	update := &models.SocialAccount{}
	if err := sealCredential(update, fresh, []byte(s.cfg.SecretKey)); err != nil {
		return err
	}
	if err := s.sa.SetToken(ctx, sa.ID, oldAccessToken, update); err != nil {
		if errors.Is(err, repository.ErrStaleToken) {
			return nil
		}
		return fmt.Errorf("error saving token of account %d: %w", sa.ID, err)
	}

	slog.Info("token refreshed", "account_id", sa.ID, "platform", sa.Platform, "expires_at", fresh.ExpiresAt)
	return nil
}

// revoke withdraws platform access on a best-effort basis; the link is
// removed locally either way.
func (s *accountService) revoke(ctx context.Context, sa *models.SocialAccount) {
	p, err := s.publishers.For(sa.Platform)
	if err != nil {
		return
	}
	revoker, ok := p.(publisher.Revoker)
	if !ok {
		return
	}
	cred, err := openCredential(sa, []byte(s.cfg.SecretKey))
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if err := revoker.RevokeAccess(ctx, cred); err != nil {
		slog.Warn("unable to revoke access", "account_id", sa.ID, "platform", sa.Platform, "error", err)
	}
}

// owned returns the account when it belongs to userID. A foreign account
// reads as missing.
func (s *accountService) owned(ctx context.Context, userID, accountID int64) (*models.SocialAccount, error) {
	sa, err := s.sa.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("error getting social account: %w", err)
	}
	if sa == nil || sa.UserID != userID {
		return nil, fmt.Errorf("social account %d: %w", accountID, ErrNotFound)
	}
	return sa, nil
}
