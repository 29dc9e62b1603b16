package handler

import (
	"net/http"
	"strconv"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/httputil"
	"github.com/rentora/rentora-backend/pkg/logger"
)

// AllocationHandler handles allocation and release endpoints
type AllocationHandler struct {
	service *service.Allocator
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.Allocator, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

type allocateRequest struct {
	ItemID   string                 `json:"item_id" validate:"required,uuid"`
	Quantity int                    `json:"quantity" validate:"gt=0,lte=10000"`
	Consumer repository.ConsumerRef `json:"consumer" validate:"required"`
}

type releaseRequest struct {
	UnitIDs []string `json:"unit_ids" validate:"required,min=1,max=1000,dive,uuid"`
}

type releaseConsumerRequest struct {
	Consumer repository.ConsumerRef `json:"consumer" validate:"required"`
}

// Allocate reserves in-stock units for a consumer
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.service.Allocate(r.Context(), req.ItemID, req.Quantity, req.Consumer)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.Created(w, result)
}

// Release returns rented units to stock
func (h *AllocationHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.service.Release(r.Context(), req.UnitIDs)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// ReleaseConsumer returns every unit a consumer holds to stock
func (h *AllocationHandler) ReleaseConsumer(w http.ResponseWriter, r *http.Request) {
	var req releaseConsumerRequest
	if err := httputil.DecodeJSONLocalized(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.service.ReleaseConsumer(r.Context(), req.Consumer)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// List lists a consumer's allocations
func (h *AllocationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := repository.ConsumerRef{
		Type: repository.ConsumerType(q.Get("consumer_type")),
		Ref:  q.Get("consumer_ref"),
	}
	activeOnly, _ := strconv.ParseBool(q.Get("active"))

	list, err := h.service.ListAllocations(r.Context(), ref, activeOnly)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, list)
}

// Get gets an allocation with its unit links
func (h *AllocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	a, err := h.service.GetAllocation(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, a)
}
