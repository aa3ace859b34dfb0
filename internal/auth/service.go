package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/webxv/backend/internal/models"
	"github.com/webxv/backend/internal/repository"
	"github.com/webxv/backend/internal/rewards"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrInvalidReferralCode rejects a signup citing a code no account owns.
var ErrInvalidReferralCode = errors.New("invalid referral code")

// ErrInvalidCredentials covers both unknown email and wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrAccountDisabled is returned when a deactivated or deleted account logs in.
var ErrAccountDisabled = errors.New("account is disabled")

// TxBeginner abstracts transaction creation for the signup flow.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountStore is the subset of the account repository auth needs.
type AccountStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Account, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// InsertReferralRewardTxFunc enqueues the referral reward job within the
// signup transaction. Provided by main using river.Client.InsertTx.
type InsertReferralRewardTxFunc func(ctx context.Context, tx pgx.Tx, args rewards.GrantReferralRewardArgs) error

type Service interface {
	Register(ctx context.Context, email, password, name, referralCode string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, *models.Account, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
}

type service struct {
	db                   TxBeginner
	accounts             AccountStore
	insertReferralReward InsertReferralRewardTxFunc
	secret               []byte
	tokenTTL             time.Duration
}

// NewService creates the auth service. insertReferralReward may be nil when
// no job queue is wired (tests); referred signups then skip the reward.
func NewService(db TxBeginner, accounts AccountStore, insertReferralReward InsertReferralRewardTxFunc, secret string) Service {
	if secret == "" {
		secret = "dev-secret-change-me"
	}
	return &service{
		db:                   db,
		accounts:             accounts,
		insertReferralReward: insertReferralReward,
		secret:               []byte(secret),
		tokenTTL:             24 * time.Hour,
	}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Register creates an account, resolving an optional referral code to the
// referring account. An unknown code rejects the signup. The referral reward
// job is enqueued in the same transaction as the account row, so the reward
// is attempted exactly when the signup commits, but the signup never waits
// on the reward itself.
func (s *service) Register(ctx context.Context, email, password, name, referralCode string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var referrer *models.Account
	if referralCode != "" {
		var err error
		referrer, err = s.accounts.GetByReferralCode(ctx, referralCode)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return nil, ErrInvalidReferralCode
			}
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	// Referral codes collide rarely; retry with a fresh code when they do.
	for attempt := 0; attempt < 3; attempt++ {
		code, err := GenerateReferralCode()
		if err != nil {
			return nil, err
		}

		acc := &models.Account{
			ID:           uuid.New(),
			Email:        email,
			Name:         name,
			PasswordHash: string(hash),
			Status:       models.AccountStatusActive,
			Role:         models.RoleCustomer,
			ReferralCode: &code,
		}
		if referrer != nil {
			acc.ReferredBy = &referrer.ID
		}

		acc, err = s.createWithReward(ctx, acc, referrer)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				if strings.Contains(pgErr.ConstraintName, "referral_code") {
					continue
				}
				return nil, ErrDuplicateEmail
			}
			return nil, err
		}
		return acc, nil
	}
	return nil, errors.New("could not allocate a referral code")
}

func (s *service) createWithReward(ctx context.Context, acc *models.Account, referrer *models.Account) (*models.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.accounts.CreateTx(ctx, tx, acc); err != nil {
		return nil, err
	}

	if referrer != nil && s.insertReferralReward != nil {
		if err := s.insertReferralReward(ctx, tx, rewards.GrantReferralRewardArgs{
			ReferrerID: referrer.ID,
			ReferredID: acc.ID,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, *models.Account, error) {
	acc, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if acc.Status != models.AccountStatusActive {
		return "", nil, ErrAccountDisabled
	}
	if err := s.accounts.UpdateLastLogin(ctx, acc.ID); err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(acc.ID, acc.Role)
	if err != nil {
		return "", nil, err
	}
	return token, acc, nil
}

func (s *service) issueToken(accountID uuid.UUID, role string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}
