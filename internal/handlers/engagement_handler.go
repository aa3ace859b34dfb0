package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/webxv/backend/internal/middleware"
	"github.com/webxv/backend/internal/models"
	"github.com/webxv/backend/internal/rewards"
)

// RewardEngine is the slice of the reward service the handler needs.
type RewardEngine interface {
	JoinCommunity(ctx context.Context, accountID uuid.UUID, community, profileURL string) (*rewards.Grant, error)
	PlayGame(ctx context.Context, accountID uuid.UUID, gameID, gameName string) (*rewards.Grant, error)
	ClaimDailyLogin(ctx context.Context, accountID uuid.UUID) (*rewards.Grant, error)
}

// ActivityLister reads engagement records back for the authed account.
type ActivityLister interface {
	ListCommunityJoins(ctx context.Context, accountID uuid.UUID) ([]*models.CommunityJoin, error)
	ListHistory(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.PointsHistory, error)
}

// EngagementHandler serves /v1/activities endpoints.
type EngagementHandler struct {
	Rewards  RewardEngine
	Activity ActivityLister
	Logger   *slog.Logger
}

// --- POST /v1/activities/communities/join ---

type joinCommunityRequest struct {
	Community  string `json:"community"`
	ProfileURL string `json:"profile_url"`
}

func (h *EngagementHandler) JoinCommunity(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req joinCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	community, err := models.ParseCommunity(req.Community)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	grant, err := h.Rewards.JoinCommunity(r.Context(), accountID, community, req.ProfileURL)
	if err != nil {
		h.respondGrantError(w, err)
		return
	}
	respond(w, http.StatusOK, grantMessage(grant, "community joined"), grant)
}

// --- POST /v1/activities/games ---

// The awarded score comes from the play_game config, never the client.
type playGameRequest struct {
	GameID   string `json:"game_id"`
	GameName string `json:"game_name"`
}

func (h *EngagementHandler) PlayGame(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req playGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.GameID == "" || req.GameName == "" {
		respondError(w, http.StatusBadRequest, "game_id and game_name are required")
		return
	}
	if len(req.GameID) > 50 {
		respondError(w, http.StatusBadRequest, "game_id must be at most 50 characters")
		return
	}
	if len(req.GameName) > 100 {
		respondError(w, http.StatusBadRequest, "game_name must be at most 100 characters")
		return
	}

	grant, err := h.Rewards.PlayGame(r.Context(), accountID, req.GameID, req.GameName)
	if err != nil {
		h.respondGrantError(w, err)
		return
	}
	respond(w, http.StatusOK, grantMessage(grant, "game recorded"), grant)
}

// --- POST /v1/activities/daily-login ---

func (h *EngagementHandler) ClaimDailyLogin(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	grant, err := h.Rewards.ClaimDailyLogin(r.Context(), accountID)
	if err != nil {
		h.respondGrantError(w, err)
		return
	}
	respond(w, http.StatusOK, grantMessage(grant, "daily login recorded"), grant)
}

// --- GET /v1/activities/communities ---

func (h *EngagementHandler) ListCommunityJoins(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	list, err := h.Activity.ListCommunityJoins(r.Context(), accountID)
	if err != nil {
		h.Logger.Error("list community joins", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusOK, "", list)
}

// --- GET /v1/activities/history ---

func (h *EngagementHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	list, err := h.Activity.ListHistory(r.Context(), accountID, parseLimit(r))
	if err != nil {
		h.Logger.Error("list points history", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusOK, "", list)
}

// --- helpers ---

func (h *EngagementHandler) respondGrantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rewards.ErrActivityNotConfigured):
		respondError(w, http.StatusBadRequest, "activity is not available")
	case errors.Is(err, rewards.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account not found")
	default:
		h.Logger.Error("reward grant failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func grantMessage(g *rewards.Grant, base string) string {
	if g.Rewarded {
		return base
	}
	return base + ", no points awarded"
}
