package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account statuses. Accounts are never deleted, only soft-disabled.
const (
	AccountStatusActive      = "active"
	AccountStatusDeactivated = "deactivated"
	AccountStatusDeleted     = "deleted"
)

// Account roles.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type Account struct {
	ID              uuid.UUID       `json:"id"`
	Email           string          `json:"email"`
	Name            string          `json:"name"`
	PasswordHash    string          `json:"-"`
	Status          string          `json:"status"`
	Role            string          `json:"role"`
	ReferralCode    *string         `json:"referral_code,omitempty"`
	ReferredBy      *uuid.UUID      `json:"referred_by,omitempty"`
	ReferralCount   int             `json:"referral_count"`
	TotalReferrals  int             `json:"total_referrals"`
	PointsBalance   int64           `json:"points_balance"`
	PointsEarned    int64           `json:"points_earned"`
	PointsRedeemed  int64           `json:"points_redeemed"`
	TokenBalance    decimal.Decimal `json:"token_balance"`
	IsSystemAccount bool            `json:"is_system_account"`
	LastLogin       *time.Time      `json:"last_login,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TokenPrecision is the fixed number of fractional digits for token amounts.
// Every token arithmetic step truncates to this precision so float drift
// cannot accumulate across transfers.
const TokenPrecision = 8

// TruncateTokens fixes a token amount to the ledger's 8-digit precision.
func TruncateTokens(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(TokenPrecision)
}
