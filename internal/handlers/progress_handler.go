package handlers

import (
	"context"
	"net/http"

	"github.com/finquiz/backend/internal/middleware"
	"github.com/finquiz/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProgressService is the interface that wraps methods for user progress business logic.
type ProgressService interface {
	// Method GetProgress retrieve the progress record of a user.
	//
	// A user without stored progress gets the default record. Errors wrap the models error taxonomy.
	GetProgress(ctx context.Context, userKey string) (*models.ProgressRecord, error)
	// Method SyncProgress merge a client submitted update into the stored progress of a user.
	//
	// XP never decreases and completed sets only grow. The merged record is returned.
	SyncProgress(ctx context.Context, userKey string, req models.ProgressSyncRequest) (*models.ProgressRecord, error)
	// Method ApplyPenalty lower the XP of a user by a non-negative delta, clamped at zero.
	ApplyPenalty(ctx context.Context, userKey string, req models.PenaltyRequest) (*models.ProgressRecord, error)
	// Method ResetProgress overwrite the progress of a user with the default record.
	ResetProgress(ctx context.Context, userKey string) (*models.ProgressRecord, error)
}

// ProgressHandler handles HTTP requests for user progress
type ProgressHandler struct {
	BaseHandler
	service ProgressService
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(svc ProgressService, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		service:     svc,
		BaseHandler: BaseHandler{logger: logger},
	}
}

// RegisterRoutes registers all progress handler routes.
//
// "identity" resolves the user key of progress routes, "admin" protects the reset route.
func (h *ProgressHandler) RegisterRoutes(r chi.Router, identity, admin func(http.Handler) http.Handler) {
	r.Route("/progress", func(r chi.Router) {
		r.Use(identity)
		r.Get("/", h.GetProgress)
		r.Post("/", h.SyncProgress)
		r.Post("/penalty", h.ApplyPenalty)
	})
	r.With(admin).Post("/admin/progress/{userKey}/reset", h.ResetProgress)
}

// GetProgress handles GET /api/v1/progress
// @Summary Get progress
// @Description Get the progress record of the authenticated user. Users without stored progress get xp 0 and level 1.
// @Tags progress
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ProgressResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /progress [get]
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userKey, ok := middleware.GetUserKey(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	record, err := h.service.GetProgress(r.Context(), userKey)
	if err != nil {
		h.logger.Error("failed to get progress", zap.Error(err), zap.String("user_key", userKey))
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, models.NewProgressResponse(record))
}

// SyncProgress handles POST /api/v1/progress
// @Summary Sync progress
// @Description Merge a partial progress update into the stored record. XP takes the maximum, completed levels and exams are unions.
// @Tags progress
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ProgressSyncRequest true "Partial progress update"
// @Success 200 {object} models.ProgressResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /progress [post]
func (h *ProgressHandler) SyncProgress(w http.ResponseWriter, r *http.Request) {
	userKey, ok := middleware.GetUserKey(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.ProgressSyncRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}

	record, err := h.service.SyncProgress(r.Context(), userKey, req)
	if err != nil {
		h.logger.Error("failed to sync progress", zap.Error(err), zap.String("user_key", userKey))
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, models.NewProgressResponse(record))
}

// ApplyPenalty handles POST /api/v1/progress/penalty
// @Summary Apply XP penalty
// @Description Lower the XP of the authenticated user by delta, never below zero. Completed levels and exams are kept.
// @Tags progress
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.PenaltyRequest true "Penalty"
// @Success 200 {object} models.ProgressResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /progress/penalty [post]
func (h *ProgressHandler) ApplyPenalty(w http.ResponseWriter, r *http.Request) {
	userKey, ok := middleware.GetUserKey(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.PenaltyRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}

	record, err := h.service.ApplyPenalty(r.Context(), userKey, req)
	if err != nil {
		h.logger.Error("failed to apply penalty", zap.Error(err), zap.String("user_key", userKey))
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, models.NewProgressResponse(record))
}

// ResetProgress handles POST /api/v1/admin/progress/{userKey}/reset
// @Summary Reset progress
// @Description Overwrite the progress of a user with the default record
// @Tags admin
// @Produce json
// @Security ApiKeyAuth
// @Param userKey path string true "User key"
// @Success 200 {object} models.ProgressResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /admin/progress/{userKey}/reset [post]
func (h *ProgressHandler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")

	record, err := h.service.ResetProgress(r.Context(), userKey)
	if err != nil {
		h.logger.Error("failed to reset progress", zap.Error(err), zap.String("user_key", userKey))
		h.respondServiceError(w, err)
		return
	}

	h.logger.Info("progress reset by admin", zap.String("user_key", userKey))
	h.respondJSON(w, http.StatusOK, models.NewProgressResponse(record))
}
