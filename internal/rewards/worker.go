package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// GrantReferralRewardArgs is enqueued in the same transaction as a referred
// signup. The reward is best-effort: the signup never waits on it.
type GrantReferralRewardArgs struct {
	ReferrerID uuid.UUID `json:"referrer_id"`
	ReferredID uuid.UUID `json:"referred_id"`
}

func (GrantReferralRewardArgs) Kind() string { return "grant_referral_reward" }

// ReferralGranter is the contract the worker needs from the reward engine.
type ReferralGranter interface {
	GrantReferralReward(ctx context.Context, referrerID, referredID uuid.UUID) (*Grant, error)
}

type GrantReferralRewardWorker struct {
	river.WorkerDefaults[GrantReferralRewardArgs]
	rewards ReferralGranter
	logger  *slog.Logger
}

func NewGrantReferralRewardWorker(rewards ReferralGranter, logger *slog.Logger) *GrantReferralRewardWorker {
	return &GrantReferralRewardWorker{rewards: rewards, logger: logger}
}

func (w *GrantReferralRewardWorker) Work(ctx context.Context, job *river.Job[GrantReferralRewardArgs]) error {
	args := job.Args

	grant, err := w.rewards.GrantReferralReward(ctx, args.ReferrerID, args.ReferredID)
	if err != nil {
		// No config means no reward program is running; nothing to retry.
		if errors.Is(err, ErrActivityNotConfigured) {
			w.logger.Info("referral reward skipped: activity not configured",
				"referrer_id", args.ReferrerID, "referred_id", args.ReferredID)
			return nil
		}
		if errors.Is(err, ErrAccountNotFound) {
			w.logger.Warn("referral reward skipped: referrer account missing",
				"referrer_id", args.ReferrerID, "referred_id", args.ReferredID)
			return nil
		}
		return fmt.Errorf("grant referral reward: %w", err)
	}

	if grant.Rewarded {
		w.logger.Info("referral reward granted",
			"referrer_id", args.ReferrerID, "referred_id", args.ReferredID, "points", grant.Points)
	}
	return nil
}
