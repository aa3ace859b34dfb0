package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/webxv/backend/internal/auth"
	"github.com/webxv/backend/internal/middleware"
	"github.com/webxv/backend/internal/models"
	"github.com/webxv/backend/internal/repository"
)

// AuthHandler serves /v1/auth endpoints.
type AuthHandler struct {
	Auth        auth.Service
	Accounts    *repository.AccountRepo
	ReferralURL string
	Logger      *slog.Logger
}

type signupRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	ReferralCode string `json:"referral_code"`
}

type accountResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	ReferralCode   string `json:"referral_code,omitempty"`
	PointsBalance  int64  `json:"points_balance"`
	PointsEarned   int64  `json:"points_earned"`
	TokenBalance   string `json:"token_balance"`
	TotalReferrals int    `json:"total_referrals"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	Account accountResponse `json:"account"`
}

// Signup handles POST /v1/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "email, password and name are required")
		return
	}
	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	acc, err := h.Auth.Register(r.Context(), req.Email, req.Password, req.Name, req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			respondError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, auth.ErrInvalidReferralCode):
			respondError(w, http.StatusBadRequest, "invalid referral code")
		default:
			h.Logger.Error("signup failed", "error", err)
			respondError(w, http.StatusInternalServerError, "signup failed")
		}
		return
	}
	respond(w, http.StatusCreated, "account created", accountToResponse(acc))
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, acc, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, auth.ErrAccountDisabled):
			respondError(w, http.StatusForbidden, "account is disabled")
		default:
			h.Logger.Error("login failed", "error", err)
			respondError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	respond(w, http.StatusOK, "logged in", loginResponse{Token: token, Account: accountToResponse(acc)})
}

type referralLinkResponse struct {
	Code string `json:"code"`
	Link string `json:"link"`
}

// ReferralLink handles GET /v1/auth/referral. It returns the authed
// account's shareable code and link.
func (h *AuthHandler) ReferralLink(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	acc, err := h.Accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		h.Logger.Error("load account", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if acc.ReferralCode == nil {
		respondError(w, http.StatusNotFound, "no referral code assigned")
		return
	}
	respond(w, http.StatusOK, "", referralLinkResponse{
		Code: *acc.ReferralCode,
		Link: fmt.Sprintf("%s/signup?ref=%s", h.ReferralURL, *acc.ReferralCode),
	})
}

// Me handles GET /v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	acc, err := h.Accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		h.Logger.Error("load account", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusOK, "", accountToResponse(acc))
}

func accountToResponse(a *models.Account) accountResponse {
	resp := accountResponse{
		ID:             a.ID.String(),
		Email:          a.Email,
		Name:           a.Name,
		Role:           a.Role,
		PointsBalance:  a.PointsBalance,
		PointsEarned:   a.PointsEarned,
		TokenBalance:   a.TokenBalance.StringFixed(models.TokenPrecision),
		TotalReferrals: a.TotalReferrals,
	}
	if a.ReferralCode != nil {
		resp.ReferralCode = *a.ReferralCode
	}
	return resp
}
