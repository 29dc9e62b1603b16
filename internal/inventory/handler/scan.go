package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/errors"
	"github.com/rentora/rentora-backend/pkg/httputil"
	"github.com/rentora/rentora-backend/pkg/logger"
)

// ScanHandler handles barcode and serial scan lookups
type ScanHandler struct {
	service *service.Lookup
	logger  *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(svc *service.Lookup, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		service: svc,
		logger:  log,
	}
}

// Lookup resolves a serial number or barcode to a unit snapshot
func (h *ScanHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	// Reject excessively long input before touching the database
	if len(code) > 200 {
		httputil.ErrorLocalized(w, r, errors.BadRequest("code too long"))
		return
	}

	snap, err := h.service.Lookup(r.Context(), code)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, snap)
}
