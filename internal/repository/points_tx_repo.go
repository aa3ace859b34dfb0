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

// ErrTransactionNotFound is returned when a ledger entry lookup matches no row.
var ErrTransactionNotFound = errors.New("transaction not found")

const pointsTxColumns = `id, account_id, counterparty_id, action_type, points, balance_after,
	transfer_fee, message, status, status_history, metadata, processed_at, expires_at, created_at`

type PointsTxRepo struct {
	pool *pgxpool.Pool
}

func NewPointsTxRepo(pool *pgxpool.Pool) *PointsTxRepo {
	return &PointsTxRepo{pool: pool}
}

// CreateTx appends a points ledger entry inside the given transaction so the
// entry commits or aborts together with the balance mutation it records.
func (r *PointsTxRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.PointsTransaction) error {
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
		INSERT INTO points_transactions
			(id, account_id, counterparty_id, action_type, points, balance_after, transfer_fee, message, status, status_history, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING processed_at, created_at
	`, t.ID, t.AccountID, t.CounterpartyID, t.ActionType, t.Points, t.BalanceAfter,
		t.TransferFee, t.Message, t.Status, history, metadata, t.ExpiresAt).Scan(&t.ProcessedAt, &t.CreatedAt)
}

func scanPointsTx(row pgx.Row) (*models.PointsTransaction, error) {
	var t models.PointsTransaction
	var history, metadata []byte
	err := row.Scan(&t.ID, &t.AccountID, &t.CounterpartyID, &t.ActionType, &t.Points,
		&t.BalanceAfter, &t.TransferFee, &t.Message, &t.Status, &history, &metadata,
		&t.ProcessedAt, &t.ExpiresAt, &t.CreatedAt)
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

func (r *PointsTxRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PointsTransaction, error) {
	return scanPointsTx(r.pool.QueryRow(ctx, `SELECT `+pointsTxColumns+` FROM points_transactions WHERE id = $1`, id))
}

// ListByAccount returns the account's ledger entries, newest first.
func (r *PointsTxRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.PointsTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+pointsTxColumns+` FROM points_transactions
		WHERE account_id = $1 ORDER BY processed_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PointsTransaction
	for rows.Next() {
		t, err := scanPointsTx(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// AppendStatus records a status change on an existing entry. The history
// array is append-only; balance_after is never touched.
func (r *PointsTxRepo) AppendStatus(ctx context.Context, id uuid.UUID, change models.StatusChange) error {
	entry, err := json.Marshal(change)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE points_transactions
		SET status = $2, status_history = status_history || $3::jsonb
		WHERE id = $1
	`, id, change.Status, entry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
