package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/webxv/backend/internal/models"
)

// TokenAccountStore is the balance-store interface for the token ledger.
type TokenAccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	DebitTokens(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	CreditTokens(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

// TokenTxSink appends token ledger entries inside the transfer's transaction.
type TokenTxSink interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.TokenTransaction) error
}

// TokenTransferResult holds the entries persisted for one token transfer.
type TokenTransferResult struct {
	SenderTx    *models.TokenTransaction
	RecipientTx *models.TokenTransaction
	FeeTx       *models.TokenTransaction
}

// Tokens performs atomic token transfers. Token amounts are fixed to 8
// fractional digits at every arithmetic step; the sender additionally pays
// an optional network gas fee which is deducted but not credited anywhere.
type Tokens struct {
	db              TxBeginner
	accounts        TokenAccountStore
	entries         TokenTxSink
	systemAccountID uuid.UUID
}

func NewTokens(db TxBeginner, accounts TokenAccountStore, entries TokenTxSink, systemAccountID uuid.UUID) *Tokens {
	return &Tokens{db: db, accounts: accounts, entries: entries, systemAccountID: systemAccountID}
}

// Transfer moves tokens from sender to recipient. The sender is debited
// amount+gasFee, the recipient credited amount-fee, and the system account
// credited fee, all within one transaction with balance_after captured from
// the storage layer's atomic increments.
func (l *Tokens) Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount, fee, gasFee decimal.Decimal, opts TransferOptions) (*TokenTransferResult, error) {
	if senderID == recipientID {
		return nil, ErrSelfTransfer
	}
	amount = models.TruncateTokens(amount)
	fee = models.TruncateTokens(fee)
	gasFee = models.TruncateTokens(gasFee)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if fee.IsNegative() {
		return nil, ErrInvalidFee
	}
	if gasFee.IsNegative() {
		return nil, ErrInvalidGasFee
	}
	if fee.GreaterThanOrEqual(amount) {
		return nil, ErrFeeExceedsAmount
	}
	if fee.IsPositive() && l.systemAccountID == uuid.Nil {
		return nil, ErrSystemAccountNotFound
	}

	if _, err := l.accounts.GetByID(ctx, recipientID); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccounts(ctx, tx, l.accounts, senderID, recipientID, l.systemAccountID, fee.IsPositive()); err != nil {
		return nil, err
	}

	totalDeduction := models.TruncateTokens(amount.Add(gasFee))
	senderBalance, err := l.accounts.DebitTokens(ctx, tx, senderID, totalDeduction)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("sender: %w", err)
		}
		return nil, err
	}

	credited := models.TruncateTokens(amount.Sub(fee))
	recipientBalance, err := l.accounts.CreditTokens(ctx, tx, recipientID, credited)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	result := &TokenTransferResult{
		SenderTx: &models.TokenTransaction{
			ID:             uuid.New(),
			AccountID:      senderID,
			CounterpartyID: &recipientID,
			ActionType:     models.ActionTransferOut,
			Tokens:         totalDeduction.Neg(),
			BalanceAfter:   senderBalance,
			TransferFee:    fee,
			GasFee:         gasFee,
			Message:        opts.Message,
			Memo:           opts.Memo,
			Status:         models.TxStatusCompleted,
			StatusHistory:  initialStatus(opts),
			Metadata:       opts.Metadata,
		},
		RecipientTx: &models.TokenTransaction{
			ID:             uuid.New(),
			AccountID:      recipientID,
			CounterpartyID: &senderID,
			ActionType:     models.ActionTransferIn,
			Tokens:         credited,
			BalanceAfter:   recipientBalance,
			TransferFee:    fee,
			GasFee:         gasFee,
			Message:        opts.Message,
			Memo:           opts.Memo,
			Status:         models.TxStatusCompleted,
			StatusHistory:  initialStatus(opts),
			Metadata:       opts.Metadata,
		},
	}

	if fee.IsPositive() {
		systemBalance, err := l.accounts.CreditTokens(ctx, tx, l.systemAccountID, fee)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, ErrSystemAccountNotFound
			}
			return nil, err
		}
		result.FeeTx = &models.TokenTransaction{
			ID:             uuid.New(),
			AccountID:      l.systemAccountID,
			CounterpartyID: &senderID,
			ActionType:     models.ActionTransferFee,
			Tokens:         fee,
			BalanceAfter:   systemBalance,
			TransferFee:    fee,
			GasFee:         gasFee,
			Status:         models.TxStatusCompleted,
			StatusHistory:  initialStatus(opts),
			Metadata:       opts.Metadata,
		}
	}

	if err := l.entries.CreateTx(ctx, tx, result.SenderTx); err != nil {
		return nil, err
	}
	if err := l.entries.CreateTx(ctx, tx, result.RecipientTx); err != nil {
		return nil, err
	}
	if result.FeeTx != nil {
		if err := l.entries.CreateTx(ctx, tx, result.FeeTx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	return result, nil
}
