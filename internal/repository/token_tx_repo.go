package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webxv/backend/internal/models"
)

const tokenTxColumns = `id, account_id, counterparty_id, action_type, tokens, balance_after,
	transfer_fee, gas_fee, message, memo, status, status_history, metadata, processed_at, expires_at, created_at`

type TokenTxRepo struct {
	pool *pgxpool.Pool
}

func NewTokenTxRepo(pool *pgxpool.Pool) *TokenTxRepo {
	return &TokenTxRepo{pool: pool}
}

// CreateTx appends a token ledger entry inside the given transaction.
func (r *TokenTxRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.TokenTransaction) error {
	history := []byte("[]")
	var err error
	if len(t.StatusHistory) > 0 {
		if history, err = json.Marshal(t.StatusHistory); err != nil {
			return err
		}
	}
	var metadata []byte
	if t.Metadata != nil {
		if metadata, err = json.Marshal(t.Metadata); err != nil {
			return err
		}
	}
	return tx.QueryRow(ctx, `
		INSERT INTO token_transactions
			(id, account_id, counterparty_id, action_type, tokens, balance_after, transfer_fee, gas_fee, message, memo, status, status_history, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING processed_at, created_at
	`, t.ID, t.AccountID, t.CounterpartyID, t.ActionType, t.Tokens, t.BalanceAfter,
		t.TransferFee, t.GasFee, t.Message, t.Memo, t.Status, history, metadata, t.ExpiresAt).Scan(&t.ProcessedAt, &t.CreatedAt)
}

func scanTokenTx(row pgx.Row) (*models.TokenTransaction, error) {
	var t models.TokenTransaction
	var history, metadata []byte
	err := row.Scan(&t.ID, &t.AccountID, &t.CounterpartyID, &t.ActionType, &t.Tokens,
		&t.BalanceAfter, &t.TransferFee, &t.GasFee, &t.Message, &t.Memo, &t.Status,
		&history, &metadata, &t.ProcessedAt, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &t.StatusHistory); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (r *TokenTxRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TokenTransaction, error) {
	return scanTokenTx(r.pool.QueryRow(ctx, `SELECT `+tokenTxColumns+` FROM token_transactions WHERE id = $1`, id))
}

// ListByAccount returns the account's token ledger entries, newest first.
func (r *TokenTxRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.TokenTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+tokenTxColumns+` FROM token_transactions
		WHERE account_id = $1 ORDER BY processed_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TokenTransaction
	for rows.Next() {
		t, err := scanTokenTx(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
