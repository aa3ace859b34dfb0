package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webxv/backend/internal/models"
	"github.com/webxv/backend/internal/repository"
)

// ConfigStore is the activity-config slice of the repository.
type ConfigStore interface {
	CreateConfig(ctx context.Context, c *models.ActivityConfig) error
	GetConfigByID(ctx context.Context, id uuid.UUID) (*models.ActivityConfig, error)
	ListConfigs(ctx context.Context) ([]*models.ActivityConfig, error)
	UpdateConfigPoints(ctx context.Context, id uuid.UUID, points int64) (*models.ActivityConfig, error)
	DeleteConfig(ctx context.Context, id uuid.UUID) error
}

// AdminHandler serves /v1/admin endpoints. Routes are gated on the admin
// role by middleware.
type AdminHandler struct {
	Configs ConfigStore
	Logger  *slog.Logger
}

type configRequest struct {
	ActivityType string      `json:"activity_type"`
	Points       json.Number `json:"points"`
}

// CreateConfig handles POST /v1/admin/activity-configs.
func (h *AdminHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	activityType, err := models.ParseActivityType(req.ActivityType)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := req.Points.Int64()
	if err != nil || points < 0 {
		respondError(w, http.StatusBadRequest, "points must be a non-negative whole number")
		return
	}

	cfg := &models.ActivityConfig{ID: uuid.New(), ActivityType: activityType, Points: points}
	if err := h.Configs.CreateConfig(r.Context(), cfg); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "activity is already configured")
			return
		}
		h.Logger.Error("create activity config", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusCreated, "activity config created", cfg)
}

// ListConfigs handles GET /v1/admin/activity-configs.
func (h *AdminHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	list, err := h.Configs.ListConfigs(r.Context())
	if err != nil {
		h.Logger.Error("list activity configs", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusOK, "", list)
}

// GetConfig handles GET /v1/admin/activity-configs/{id}.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := configIDFromPath(w, r)
	if !ok {
		return
	}
	cfg, err := h.Configs.GetConfigByID(r.Context(), id)
	if err != nil {
		h.respondConfigError(w, err)
		return
	}
	respond(w, http.StatusOK, "", cfg)
}

// UpdateConfig handles PUT /v1/admin/activity-configs/{id}.
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := configIDFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Points json.Number `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	points, err := req.Points.Int64()
	if err != nil || points < 0 {
		respondError(w, http.StatusBadRequest, "points must be a non-negative whole number")
		return
	}

	cfg, err := h.Configs.UpdateConfigPoints(r.Context(), id, points)
	if err != nil {
		h.respondConfigError(w, err)
		return
	}
	respond(w, http.StatusOK, "activity config updated", cfg)
}

// DeleteConfig handles DELETE /v1/admin/activity-configs/{id}.
func (h *AdminHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := configIDFromPath(w, r)
	if !ok {
		return
	}
	if err := h.Configs.DeleteConfig(r.Context(), id); err != nil {
		h.respondConfigError(w, err)
		return
	}
	respond(w, http.StatusOK, "activity config deleted", nil)
}

func (h *AdminHandler) respondConfigError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrConfigNotFound) {
		respondError(w, http.StatusNotFound, "activity config not found")
		return
	}
	h.Logger.Error("activity config operation failed", "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}

func configIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid config id")
		return uuid.Nil, false
	}
	return id, true
}
