package handler

import (
	"net/http"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/httputil"
	"github.com/rentora/rentora-backend/pkg/logger"
)

// ItemHandler handles item endpoints
type ItemHandler struct {
	ledger *service.Ledger
	units  *service.UnitStore
	logger *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(ledger *service.Ledger, units *service.UnitStore, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		ledger: ledger,
		units:  units,
		logger: log,
	}
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,lte=10000"`
}

type availabilityRequest struct {
	ItemIDs []string `json:"item_ids" validate:"required,min=1,max=500,dive,uuid"`
}

// List lists items with live counts
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	filter := repository.ItemFilter{
		CategoryID: r.URL.Query().Get("category_id"),
		Search:     r.URL.Query().Get("search"),
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	}

	items, total, err := h.ledger.ListItems(r.Context(), filter)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, items, httputil.NewMeta(page, perPage, total))
}

// Get gets an item by ID
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	item, err := h.ledger.GetItem(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// Create creates an item with its initial units
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateItemInput
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	item, err := h.ledger.CreateItem(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, item)
}

// Update updates an item's descriptive fields
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req service.UpdateItemInput
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	item, err := h.ledger.UpdateItem(r.Context(), id, req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// SetQuantity reconciles the item's units to the declared quantity
func (h *ItemHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req quantityRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	item, err := h.ledger.SetDeclaredQuantity(r.Context(), id, *req.Quantity)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// Delete deletes an item and its units
func (h *ItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := h.ledger.DeleteItem(r.Context(), id); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// Availability returns one item's availability summary
func (h *ItemHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	summary, err := h.ledger.ItemAvailability(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summary)
}

// BatchAvailability returns availability summaries for several items
func (h *ItemHandler) BatchAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	summaries, err := h.ledger.Availability(r.Context(), req.ItemIDs)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, summaries)
}

// ListUnits lists an item's units
func (h *ItemHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	units, err := h.units.ListUnitsByItem(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, units)
}

// CreateUnit adds an operator-entered unit to the item
func (h *ItemHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	var req service.CreateUnitInput
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	req.ItemID = id
	unit, err := h.units.CreateUnit(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, unit)
}
