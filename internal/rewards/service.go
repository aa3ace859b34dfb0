package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webxv/backend/internal/models"
	"github.com/webxv/backend/internal/repository"
)

// rewardWindow is the rolling eligibility window for repeatable activities
// (daily login, game completion).
const rewardWindow = 24 * time.Hour

// ErrActivityNotConfigured means no point value exists for the activity, so
// no reward can be granted. The underlying action may still be recorded.
var ErrActivityNotConfigured = errors.New("activity is not configured for rewards")

// ErrAccountNotFound is re-exported so handlers depend on this package alone.
var ErrAccountNotFound = repository.ErrAccountNotFound

// TxBeginner abstracts transaction creation, mirroring the ledger package.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountStore is the slice of the account repository the reward engine
// needs. The FOR UPDATE read serializes window checks per account.
type AccountStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	CreditEarnedPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	IncrementReferralStats(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// ActivityStore persists configs, eligibility records, and grant history.
type ActivityStore interface {
	GetConfigTx(ctx context.Context, tx pgx.Tx, activityType string) (*models.ActivityConfig, error)
	InsertCommunityJoinTx(ctx context.Context, tx pgx.Tx, j *models.CommunityJoin) (bool, error)
	InsertGamePlayTx(ctx context.Context, tx pgx.Tx, p *models.GamePlay) error
	HasRewardedGamePlaySinceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, since time.Time) (bool, error)
	InsertHistoryTx(ctx context.Context, tx pgx.Tx, h *models.PointsHistory) error
	HasHistorySinceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, activityType string, since time.Time) (bool, error)
	HasReferralGrantTx(ctx context.Context, tx pgx.Tx, referrerID, referredID uuid.UUID) (bool, error)
}

// LedgerSink writes the points ledger entry for a grant.
type LedgerSink interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.PointsTransaction) error
}

// Grant is the outcome of a reward request. Rewarded is false when the
// request succeeded but earned nothing (already claimed, window not elapsed,
// zero score). Callers treat that as success, not an error.
type Grant struct {
	Rewarded     bool  `json:"rewarded"`
	Points       int64 `json:"points"`
	BalanceAfter int64 `json:"balance_after,omitempty"`
}

// Service grants activity rewards: one-time community joins, rolling-window
// game and login rewards, and referral credits. Every grant moves the
// balance, writes a ledger entry, and appends to points history in one
// transaction.
type Service struct {
	db       TxBeginner
	accounts AccountStore
	activity ActivityStore
	entries  LedgerSink
	now      func() time.Time
}

func NewService(db TxBeginner, accounts AccountStore, activity ActivityStore, entries LedgerSink) *Service {
	return &Service{db: db, accounts: accounts, activity: activity, entries: entries, now: time.Now}
}

// JoinCommunity grants the one-time reward for joining a community. A repeat
// join is not an error: it returns a zero grant. Eligibility and claim are a
// single atomic step via the unique (account, community) insert.
func (s *Service) JoinCommunity(ctx context.Context, accountID uuid.UUID, community, profileURL string) (*Grant, error) {
	activityType := models.CommunityActivityType(community)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin community join: %w", err)
	}
	defer tx.Rollback(ctx)

	cfg, err := s.activity.GetConfigTx(ctx, tx, activityType)
	if err != nil {
		if errors.Is(err, repository.ErrConfigNotFound) {
			return nil, ErrActivityNotConfigured
		}
		return nil, err
	}

	inserted, err := s.activity.InsertCommunityJoinTx(ctx, tx, &models.CommunityJoin{
		ID:           uuid.New(),
		AccountID:    accountID,
		Community:    community,
		ProfileURL:   profileURL,
		PointsEarned: cfg.Points,
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &Grant{}, nil
	}

	balance, err := s.grant(ctx, tx, accountID, models.ActionCommunityJoin, activityType, cfg.Points,
		json.RawMessage(fmt.Sprintf(`{"community":%q}`, community)))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit community join: %w", err)
	}
	return &Grant{Rewarded: true, Points: cfg.Points, BalanceAfter: balance}, nil
}

// PlayGame records a game session and grants the game reward at most once
// per rolling window per account regardless of which game was played. The
// stored score is the configured play_game point value, never a
// client-supplied number, so a stored positive score always marks a granted
// reward. An in-window play succeeds but records nothing; an unconfigured
// one records a zero-score session.
func (s *Service) PlayGame(ctx context.Context, accountID uuid.UUID, gameID, gameName string) (*Grant, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin game play: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the account so concurrent plays serialize on the window check.
	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
		return nil, err
	}

	rewarded, err := s.activity.HasRewardedGamePlaySinceTx(ctx, tx, accountID, s.now().Add(-rewardWindow))
	if err != nil {
		return nil, err
	}
	if rewarded {
		return &Grant{}, nil
	}

	var points int64
	cfg, err := s.activity.GetConfigTx(ctx, tx, models.ActivityPlayGame)
	if err != nil && !errors.Is(err, repository.ErrConfigNotFound) {
		return nil, err
	}
	if cfg != nil {
		points = cfg.Points
	}

	if err := s.activity.InsertGamePlayTx(ctx, tx, &models.GamePlay{
		ID:        uuid.New(),
		AccountID: accountID,
		GameID:    gameID,
		GameName:  gameName,
		Score:     points,
	}); err != nil {
		return nil, err
	}

	if points == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit game play: %w", err)
		}
		return &Grant{}, nil
	}

	balance, err := s.grant(ctx, tx, accountID, models.ActionGameCompletion, models.ActivityPlayGame, points,
		json.RawMessage(fmt.Sprintf(`{"game_id":%q}`, gameID)))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit game play: %w", err)
	}
	return &Grant{Rewarded: true, Points: points, BalanceAfter: balance}, nil
}

// ClaimDailyLogin grants the login reward at most once per rolling window.
func (s *Service) ClaimDailyLogin(ctx context.Context, accountID uuid.UUID) (*Grant, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin daily login: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
		return nil, err
	}

	claimed, err := s.activity.HasHistorySinceTx(ctx, tx, accountID, models.ActivityDailyLogin, s.now().Add(-rewardWindow))
	if err != nil {
		return nil, err
	}
	if claimed {
		return &Grant{}, nil
	}

	cfg, err := s.activity.GetConfigTx(ctx, tx, models.ActivityDailyLogin)
	if err != nil {
		if errors.Is(err, repository.ErrConfigNotFound) {
			return nil, ErrActivityNotConfigured
		}
		return nil, err
	}

	balance, err := s.grant(ctx, tx, accountID, models.ActionDailyLogin, models.ActivityDailyLogin, cfg.Points, nil)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit daily login: %w", err)
	}
	return &Grant{Rewarded: true, Points: cfg.Points, BalanceAfter: balance}, nil
}

// GrantReferralReward credits the referrer for a completed referred signup
// and bumps their referral counters. Safe to retry: a repeat call for the
// same referred account is a no-op.
func (s *Service) GrantReferralReward(ctx context.Context, referrerID, referredID uuid.UUID) (*Grant, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin referral reward: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, referrerID); err != nil {
		return nil, err
	}

	already, err := s.activity.HasReferralGrantTx(ctx, tx, referrerID, referredID)
	if err != nil {
		return nil, err
	}
	if already {
		return &Grant{}, nil
	}

	cfg, err := s.activity.GetConfigTx(ctx, tx, models.ActivityReferralJoin)
	if err != nil {
		if errors.Is(err, repository.ErrConfigNotFound) {
			return nil, ErrActivityNotConfigured
		}
		return nil, err
	}

	if err := s.accounts.IncrementReferralStats(ctx, tx, referrerID); err != nil {
		return nil, err
	}

	balance, err := s.creditAndRecord(ctx, tx, referrerID, &referredID, models.ActionReferralJoin,
		models.ActivityReferralJoin, cfg.Points,
		json.RawMessage(fmt.Sprintf(`{"referred_id":%q}`, referredID)))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit referral reward: %w", err)
	}
	return &Grant{Rewarded: true, Points: cfg.Points, BalanceAfter: balance}, nil
}

// grant credits the account and records both the ledger entry and the
// points history row for a self-originated activity.
func (s *Service) grant(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, action models.ActionType, activityType string, points int64, reference json.RawMessage) (int64, error) {
	return s.creditAndRecord(ctx, tx, accountID, nil, action, activityType, points, reference)
}

func (s *Service) creditAndRecord(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, counterparty *uuid.UUID, action models.ActionType, activityType string, points int64, reference json.RawMessage) (int64, error) {
	balance, err := s.accounts.CreditEarnedPoints(ctx, tx, accountID, points)
	if err != nil {
		return 0, err
	}

	entry := &models.PointsTransaction{
		ID:             uuid.New(),
		AccountID:      accountID,
		CounterpartyID: counterparty,
		ActionType:     action,
		Points:         points,
		BalanceAfter:   balance,
		Status:         models.TxStatusCompleted,
		StatusHistory: []models.StatusChange{{
			Status:    models.TxStatusCompleted,
			ChangedAt: s.now().UTC(),
			Reason:    activityType,
		}},
	}
	if err := s.entries.CreateTx(ctx, tx, entry); err != nil {
		return 0, err
	}

	if err := s.activity.InsertHistoryTx(ctx, tx, &models.PointsHistory{
		ID:           uuid.New(),
		AccountID:    accountID,
		ActivityType: activityType,
		Points:       points,
		Reference:    reference,
	}); err != nil {
		return 0, err
	}
	return balance, nil
}
