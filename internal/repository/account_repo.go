package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/webxv/backend/internal/models"
)

// ErrInsufficientBalance is returned by the conditional debit helpers when
// the account balance is below the requested amount. The debit is not
// applied.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrAccountNotFound is returned when a balance mutation targets an account
// id with no row. Mutations never silently create accounts.
var ErrAccountNotFound = errors.New("account not found")

const accountColumns = `id, email, name, password_hash, status, role, referral_code, referred_by,
	referral_count, total_referrals, points_balance, points_earned, points_redeemed,
	token_balance, is_system_account, last_login, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Status, &a.Role,
		&a.ReferralCode, &a.ReferredBy, &a.ReferralCount, &a.TotalReferrals,
		&a.PointsBalance, &a.PointsEarned, &a.PointsRedeemed, &a.TokenBalance,
		&a.IsSystemAccount, &a.LastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, status, role, referral_code, referred_by, is_system_account)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.Name, a.PasswordHash, a.Status, a.Role, a.ReferralCode, a.ReferredBy, a.IsSystemAccount).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// CreateTx inserts an account inside the given transaction (used by signup
// so the referral reward job can be enqueued atomically with the account).
func (r *AccountRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) error {
	return tx.QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, status, role, referral_code, referred_by, is_system_account)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.Name, a.PasswordHash, a.Status, a.Role, a.ReferralCode, a.ReferredBy, a.IsSystemAccount).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (r *AccountRepo) GetByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code))
}

// GetByIDForUpdate locks the account row. Call within a transaction; the
// reward engine uses the lock to serialize eligibility checks on the same
// account.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// SetStatus soft-disables or re-enables an account. Rows are never deleted.
func (r *AccountRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE accounts SET last_login = now(), updated_at = now() WHERE id = $1`, id)
	return err
}

// DebitPoints atomically deducts amount if points_balance >= amount and
// returns the authoritative new balance. The condition plus RETURNING is the
// lost-update guard: the balance is never computed in application memory.
func (r *AccountRepo) DebitPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET points_balance = points_balance - $1, updated_at = now()
		WHERE id = $2 AND points_balance >= $1
		RETURNING points_balance
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the account is missing or the balance is short.
		var exists bool
		if err2 := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err2 != nil {
			return 0, err2
		}
		if !exists {
			return 0, ErrAccountNotFound
		}
		return 0, ErrInsufficientBalance
	}
	return newBalance, err
}

// CreditPoints atomically adds amount to points_balance and returns the new
// balance. Fails with ErrAccountNotFound if no row matched.
func (r *AccountRepo) CreditPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET points_balance = points_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING points_balance
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return newBalance, err
}

// CreditEarnedPoints credits a reward: points_balance and the lifetime
// points_earned counter move together.
func (r *AccountRepo) CreditEarnedPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE accounts
		SET points_balance = points_balance + $1, points_earned = points_earned + $1, updated_at = now()
		WHERE id = $2
		RETURNING points_balance
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return newBalance, err
}

// DebitTokens atomically deducts a token amount (transfer plus gas) if the
// balance covers it, returning the new balance.
func (r *AccountRepo) DebitTokens(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET token_balance = token_balance - $1, updated_at = now()
		WHERE id = $2 AND token_balance >= $1
		RETURNING token_balance
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err2 := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err2 != nil {
			return decimal.Zero, err2
		}
		if !exists {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, ErrInsufficientBalance
	}
	return newBalance, err
}

// CreditTokens atomically adds a token amount and returns the new balance.
func (r *AccountRepo) CreditTokens(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET token_balance = token_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING token_balance
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrAccountNotFound
	}
	return newBalance, err
}

// IncrementReferralStats bumps the referrer's counters when a referred
// signup completes.
func (r *AccountRepo) IncrementReferralStats(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET referral_count = referral_count + 1, total_referrals = total_referrals + 1, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetReferralCode assigns a referral code if the account does not have one.
func (r *AccountRepo) SetReferralCode(ctx context.Context, id uuid.UUID, code string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET referral_code = $2, updated_at = now()
		WHERE id = $1 AND referral_code IS NULL
	`, id, code)
	return err
}

// ListReferrals returns accounts referred by the given account.
func (r *AccountRepo) ListReferrals(ctx context.Context, id uuid.UUID) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE referred_by = $1 ORDER BY created_at DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
