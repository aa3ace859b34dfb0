package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionType classifies a ledger mutation. The set is closed: unknown values
// are rejected at the boundary rather than stored as free-form strings.
type ActionType string

const (
	ActionTransferIn      ActionType = "transfer_in"
	ActionTransferOut     ActionType = "transfer_out"
	ActionTransferFee     ActionType = "transfer_fee"
	ActionReferralJoin    ActionType = "referral_join"
	ActionReferralSignup  ActionType = "referral_signup"
	ActionDailyLogin      ActionType = "daily_login"
	ActionGameCompletion  ActionType = "game_completion"
	ActionCommunityJoin   ActionType = "community_join"
	ActionPurchase        ActionType = "purchase"
	ActionAdminAdjustment ActionType = "admin_adjustment"
	ActionRedemption      ActionType = "reward_redemption"
	ActionExpiration      ActionType = "expiration"
)

var actionTypes = map[ActionType]bool{
	ActionTransferIn:      true,
	ActionTransferOut:     true,
	ActionTransferFee:     true,
	ActionReferralJoin:    true,
	ActionReferralSignup:  true,
	ActionDailyLogin:      true,
	ActionGameCompletion:  true,
	ActionCommunityJoin:   true,
	ActionPurchase:        true,
	ActionAdminAdjustment: true,
	ActionRedemption:      true,
	ActionExpiration:      true,
}

// ParseActionType validates a wire string against the closed set.
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(s)
	if !actionTypes[a] {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return a, nil
}

// TxStatus is the transaction status lifecycle.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusReversed  TxStatus = "reversed"
	TxStatusCancelled TxStatus = "cancelled"
	TxStatusFailed    TxStatus = "failed"
	TxStatusRefunded  TxStatus = "refunded"
	TxStatusOnHold    TxStatus = "on_hold"
)

var txStatuses = map[TxStatus]bool{
	TxStatusPending:   true,
	TxStatusCompleted: true,
	TxStatusReversed:  true,
	TxStatusCancelled: true,
	TxStatusFailed:    true,
	TxStatusRefunded:  true,
	TxStatusOnHold:    true,
}

// ParseTxStatus validates a wire string against the closed set.
func ParseTxStatus(s string) (TxStatus, error) {
	st := TxStatus(s)
	if !txStatuses[st] {
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
	return st, nil
}

// StatusChange is one append-only entry in a transaction's status history.
type StatusChange struct {
	Status    TxStatus   `json:"status"`
	ChangedAt time.Time  `json:"changed_at"`
	ChangedBy *uuid.UUID `json:"changed_by,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// TxMetadata is free-form audit context captured at transaction time.
type TxMetadata struct {
	IPAddress    string `json:"ip_address,omitempty"`
	Platform     string `json:"platform,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
	GameID       string `json:"game_id,omitempty"`
	PostID       string `json:"post_id,omitempty"`
}

// PointsTransaction is one entry in the points ledger. Points is signed:
// negative for outflow. BalanceAfter is the account balance immediately after
// this entry in the serialized order of operations and is immutable once
// written.
type PointsTransaction struct {
	ID             uuid.UUID      `json:"id"`
	AccountID      uuid.UUID      `json:"account_id"`
	CounterpartyID *uuid.UUID     `json:"counterparty_id,omitempty"`
	ActionType     ActionType     `json:"action_type"`
	Points         int64          `json:"points"`
	BalanceAfter   int64          `json:"balance_after"`
	TransferFee    int64          `json:"transfer_fee"`
	Message        string         `json:"message,omitempty"`
	Status         TxStatus       `json:"status"`
	StatusHistory  []StatusChange `json:"status_history,omitempty"`
	Metadata       *TxMetadata    `json:"metadata,omitempty"`
	ProcessedAt    time.Time      `json:"processed_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TokenTransaction is one entry in the token ledger. Amounts carry 8-digit
// fixed precision.
type TokenTransaction struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	CounterpartyID *uuid.UUID      `json:"counterparty_id,omitempty"`
	ActionType     ActionType      `json:"action_type"`
	Tokens         decimal.Decimal `json:"tokens"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	TransferFee    decimal.Decimal `json:"transfer_fee"`
	GasFee         decimal.Decimal `json:"gas_fee"`
	Message        string          `json:"message,omitempty"`
	Memo           string          `json:"memo,omitempty"`
	Status         TxStatus        `json:"status"`
	StatusHistory  []StatusChange  `json:"status_history,omitempty"`
	Metadata       *TxMetadata     `json:"metadata,omitempty"`
	ProcessedAt    time.Time       `json:"processed_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
