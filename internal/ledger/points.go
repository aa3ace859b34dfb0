package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/webxv/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a
// pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PointsAccountStore is the minimal balance-store interface the points
// ledger needs. Debit and credit are atomic at the storage layer and return
// the authoritative post-operation balance.
type PointsAccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	DebitPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
	CreditPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error)
}

// PointsTxSink appends ledger entries inside the transfer's transaction.
type PointsTxSink interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.PointsTransaction) error
}

// TransferOptions carries audit context for a transfer.
type TransferOptions struct {
	Message  string
	Memo     string
	ActorID  *uuid.UUID
	Reason   string
	Metadata *models.TxMetadata
}

// PointsTransferResult holds the entries persisted for one transfer. FeeTx
// is nil when no fee was charged.
type PointsTransferResult struct {
	SenderTx    *models.PointsTransaction
	RecipientTx *models.PointsTransaction
	FeeTx       *models.PointsTransaction
}

// Points performs atomic point transfers between accounts with an optional
// fee routed to the system account. The system account id is injected at
// construction; transfer logic never reads ambient configuration.
type Points struct {
	db              TxBeginner
	accounts        PointsAccountStore
	entries         PointsTxSink
	systemAccountID uuid.UUID
}

func NewPoints(db TxBeginner, accounts PointsAccountStore, entries PointsTxSink, systemAccountID uuid.UUID) *Points {
	return &Points{db: db, accounts: accounts, entries: entries, systemAccountID: systemAccountID}
}

// Transfer moves points from sender to recipient, routing fee to the system
// account. All balance mutations and ledger entries commit or abort as one
// unit; no partial transfer is ever observable.
//
// Balance mutation is a conditional atomic increment at the storage layer,
// and balance_after on each entry is the value returned by that increment,
// so concurrent transfers sharing an account serialize without lost updates.
func (l *Points) Transfer(ctx context.Context, senderID, recipientID uuid.UUID, points, fee int64, opts TransferOptions) (*PointsTransferResult, error) {
	if senderID == recipientID {
		return nil, ErrSelfTransfer
	}
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if fee < 0 {
		return nil, ErrInvalidFee
	}
	if fee >= points {
		return nil, ErrFeeExceedsAmount
	}
	if fee > 0 && l.systemAccountID == uuid.Nil {
		return nil, ErrSystemAccountNotFound
	}

	// Cheap existence check before opening the transaction: a missing
	// recipient is the caller's mistake, not a transfer failure.
	if _, err := l.accounts.GetByID(ctx, recipientID); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccounts(ctx, tx, l.accounts, senderID, recipientID, l.systemAccountID, fee > 0); err != nil {
		return nil, err
	}

	senderBalance, err := l.accounts.DebitPoints(ctx, tx, senderID, points)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("sender: %w", err)
		}
		return nil, err
	}

	recipientBalance, err := l.accounts.CreditPoints(ctx, tx, recipientID, points-fee)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	result := &PointsTransferResult{
		SenderTx: &models.PointsTransaction{
			ID:             uuid.New(),
			AccountID:      senderID,
			CounterpartyID: &recipientID,
			ActionType:     models.ActionTransferOut,
			Points:         -points,
			BalanceAfter:   senderBalance,
			TransferFee:    fee,
			Message:        opts.Message,
			Status:         models.TxStatusCompleted,
			StatusHistory:  initialStatus(opts),
			Metadata:       opts.Metadata,
		},
		RecipientTx: &models.PointsTransaction{
			ID:             uuid.New(),
			AccountID:      recipientID,
			CounterpartyID: &senderID,
			ActionType:     models.ActionTransferIn,
			Points:         points - fee,
			BalanceAfter:   recipientBalance,
			TransferFee:    fee,
			Message:        opts.Message,
			Status:         models.TxStatusCompleted,
			StatusHistory:  initialStatus(opts),
			Metadata:       opts.Metadata,
		},
	}

	if fee > 0 {
		systemBalance, err := l.accounts.CreditPoints(ctx, tx, l.systemAccountID, fee)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, ErrSystemAccountNotFound
			}
			return nil, err
		}
		result.FeeTx = &models.PointsTransaction{
			ID:             uuid.New(),
			AccountID:      l.systemAccountID,
			CounterpartyID: &senderID,
			ActionType:     models.ActionTransferFee,
			Points:         fee,
			BalanceAfter:   systemBalance,
			TransferFee:    fee,
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

// accountLocker is the row-lock slice of the account stores, shared by both
// ledgers.
type accountLocker interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
}

// lockAccounts takes row locks on every account a transfer touches, in one
// deterministic order, so opposing transfers (A->B racing B->A) cannot
// deadlock.
func lockAccounts(ctx context.Context, tx pgx.Tx, accounts accountLocker, senderID, recipientID, systemAccountID uuid.UUID, withFee bool) error {
	ids := []uuid.UUID{senderID, recipientID}
	if withFee {
		ids = append(ids, systemAccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		if _, err := accounts.GetByIDForUpdate(ctx, tx, id); err != nil {
			switch id {
			case senderID:
				return fmt.Errorf("sender: %w", err)
			case recipientID:
				return fmt.Errorf("recipient: %w", err)
			default:
				if errors.Is(err, ErrAccountNotFound) {
					return ErrSystemAccountNotFound
				}
				return err
			}
		}
	}
	return nil
}

func initialStatus(opts TransferOptions) []models.StatusChange {
	reason := opts.Reason
	if reason == "" {
		reason = "created"
	}
	return []models.StatusChange{{
		Status:    models.TxStatusCompleted,
		ChangedAt: time.Now().UTC(),
		ChangedBy: opts.ActorID,
		Reason:    reason,
	}}
}
