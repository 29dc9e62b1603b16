package handler

import (
	"net/http"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/httputil"
	"github.com/rentora/rentora-backend/pkg/logger"
)

// UnitHandler handles unit endpoints
type UnitHandler struct {
	service *service.UnitStore
	logger  *logger.Logger
}

// NewUnitHandler creates a new unit handler
func NewUnitHandler(svc *service.UnitStore, log *logger.Logger) *UnitHandler {
	return &UnitHandler{
		service: svc,
		logger:  log,
	}
}

type statusRequest struct {
	Status repository.UnitStatus `json:"status" validate:"required,oneof=in_stock rented maintenance retired"`
}

// Get gets a unit by ID
func (h *UnitHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	u, err := h.service.GetUnit(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, u)
}

// Update edits a unit's location, warranty and notes
func (h *UnitHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req service.UpdateUnitInput
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	u, err := h.service.UpdateUnit(r.Context(), id, req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, u)
}

// UpdateStatus moves a unit through the status machine
func (h *UnitHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req statusRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	u, err := h.service.UpdateUnitStatus(r.Context(), id, req.Status)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, u)
}

// Delete deletes a unit
func (h *UnitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := h.service.DeleteUnit(r.Context(), id); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}
