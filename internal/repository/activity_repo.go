package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webxv/backend/internal/models"
)

// ErrConfigNotFound is returned when no ActivityConfig row exists for an
// activity type.
var ErrConfigNotFound = errors.New("activity configuration not found")

// ActivityRepo persists reward configuration, eligibility records, and the
// points history audit sink.
type ActivityRepo struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

// --- activity_configs ---

func (r *ActivityRepo) CreateConfig(ctx context.Context, c *models.ActivityConfig) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO activity_configs (id, activity_type, points)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, c.ID, c.ActivityType, c.Points).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ActivityRepo) GetConfigByID(ctx context.Context, id uuid.UUID) (*models.ActivityConfig, error) {
	var c models.ActivityConfig
	err := r.pool.QueryRow(ctx, `
		SELECT id, activity_type, points, created_at, updated_at
		FROM activity_configs WHERE id = $1
	`, id).Scan(&c.ID, &c.ActivityType, &c.Points, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConfigTx looks up an activity's point value inside the grant
// transaction so the value read is the value applied.
func (r *ActivityRepo) GetConfigTx(ctx context.Context, tx pgx.Tx, activityType string) (*models.ActivityConfig, error) {
	var c models.ActivityConfig
	err := tx.QueryRow(ctx, `
		SELECT id, activity_type, points, created_at, updated_at
		FROM activity_configs WHERE activity_type = $1
	`, activityType).Scan(&c.ID, &c.ActivityType, &c.Points, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ActivityRepo) ListConfigs(ctx context.Context) ([]*models.ActivityConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, activity_type, points, created_at, updated_at
		FROM activity_configs ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ActivityConfig
	for rows.Next() {
		var c models.ActivityConfig
		if err := rows.Scan(&c.ID, &c.ActivityType, &c.Points, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

func (r *ActivityRepo) UpdateConfigPoints(ctx context.Context, id uuid.UUID, points int64) (*models.ActivityConfig, error) {
	var c models.ActivityConfig
	err := r.pool.QueryRow(ctx, `
		UPDATE activity_configs SET points = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, activity_type, points, created_at, updated_at
	`, id, points).Scan(&c.ID, &c.ActivityType, &c.Points, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ActivityRepo) DeleteConfig(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

// --- community_joins ---

// InsertCommunityJoinTx records a one-time community reward. The unique
// index on (account_id, community) plus ON CONFLICT DO NOTHING makes the
// eligibility check and the claim a single atomic step: inserted == false
// means the reward was already granted.
func (r *ActivityRepo) InsertCommunityJoinTx(ctx context.Context, tx pgx.Tx, j *models.CommunityJoin) (inserted bool, err error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO community_joins (id, account_id, community, profile_url, points_earned)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, community) DO NOTHING
	`, j.ID, j.AccountID, j.Community, j.ProfileURL, j.PointsEarned)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ActivityRepo) ListCommunityJoins(ctx context.Context, accountID uuid.UUID) ([]*models.CommunityJoin, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, community, profile_url, points_earned, joined_at
		FROM community_joins WHERE account_id = $1 ORDER BY joined_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CommunityJoin
	for rows.Next() {
		var j models.CommunityJoin
		if err := rows.Scan(&j.ID, &j.AccountID, &j.Community, &j.ProfileURL, &j.PointsEarned, &j.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, &j)
	}
	return list, rows.Err()
}

// --- game_plays ---

func (r *ActivityRepo) InsertGamePlayTx(ctx context.Context, tx pgx.Tx, p *models.GamePlay) error {
	return tx.QueryRow(ctx, `
		INSERT INTO game_plays (id, account_id, game_id, game_name, score)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, p.ID, p.AccountID, p.GameID, p.GameName, p.Score).Scan(&p.CreatedAt)
}

// HasRewardedGamePlaySinceTx reports whether the account earned game points
// after the cutoff. Keyed by account only, not by game. Call with the
// account row locked so two concurrent plays cannot both pass.
func (r *ActivityRepo) HasRewardedGamePlaySinceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM game_plays
			WHERE account_id = $1 AND score > 0 AND created_at >= $2
		)
	`, accountID, since).Scan(&exists)
	return exists, err
}

// --- points_history ---

func (r *ActivityRepo) InsertHistoryTx(ctx context.Context, tx pgx.Tx, h *models.PointsHistory) error {
	ref := h.Reference
	if len(ref) == 0 {
		ref = json.RawMessage("{}")
	}
	return tx.QueryRow(ctx, `
		INSERT INTO points_history (id, account_id, activity_type, points, reference)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, h.ID, h.AccountID, h.ActivityType, h.Points, ref).Scan(&h.CreatedAt)
}

// HasHistorySinceTx reports whether a grant of the given activity type
// exists after the cutoff. Used for rolling windows such as daily_login.
func (r *ActivityRepo) HasHistorySinceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, activityType string, since time.Time) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM points_history
			WHERE account_id = $1 AND activity_type = $2 AND created_at >= $3
		)
	`, accountID, activityType, since).Scan(&exists)
	return exists, err
}

// HasReferralGrantTx reports whether the referrer was already rewarded for
// this referred account. Guards against duplicate grants on job retry.
func (r *ActivityRepo) HasReferralGrantTx(ctx context.Context, tx pgx.Tx, referrerID, referredID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM points_history
			WHERE account_id = $1 AND activity_type = $2 AND reference->>'referred_id' = $3
		)
	`, referrerID, models.ActivityReferralJoin, referredID.String()).Scan(&exists)
	return exists, err
}

func (r *ActivityRepo) ListHistory(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.PointsHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, activity_type, points, reference, created_at
		FROM points_history WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PointsHistory
	for rows.Next() {
		var h models.PointsHistory
		if err := rows.Scan(&h.ID, &h.AccountID, &h.ActivityType, &h.Points, &h.Reference, &h.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &h)
	}
	return list, rows.Err()
}
