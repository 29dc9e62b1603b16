package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/principal"
)

// Handlers groups the inventory HTTP handlers
type Handlers struct {
	Categories  *CategoryHandler
	Items       *ItemHandler
	Units       *UnitHandler
	Allocations *AllocationHandler
	Scan        *ScanHandler
}

// NewHandlers creates every handler over the engine services
func NewHandlers(svcs *service.Services, log *logger.Logger) *Handlers {
	return &Handlers{
		Categories:  NewCategoryHandler(svcs.Categories, log),
		Items:       NewItemHandler(svcs.Ledger, svcs.Units, log),
		Units:       NewUnitHandler(svcs.Units, log),
		Allocations: NewAllocationHandler(svcs.Allocator, log),
		Scan:        NewScanHandler(svcs.Lookup, log),
	}
}

// Routes mounts the inventory API. Allocation, release and scan routes
// require a principal.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", h.Categories.List)
		r.Post("/", h.Categories.Create)
		r.Get("/{id}", h.Categories.Get)
		r.Put("/{id}", h.Categories.Update)
		r.Delete("/{id}", h.Categories.Delete)
	})

	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.Items.List)
		r.Post("/", h.Items.Create)
		r.Post("/availability", h.Items.BatchAvailability)
		r.Get("/{id}", h.Items.Get)
		r.Put("/{id}", h.Items.Update)
		r.Delete("/{id}", h.Items.Delete)
		r.Put("/{id}/quantity", h.Items.SetQuantity)
		r.Get("/{id}/availability", h.Items.Availability)
		r.Get("/{id}/units", h.Items.ListUnits)
		r.Post("/{id}/units", h.Items.CreateUnit)
	})

	r.Route("/units", func(r chi.Router) {
		r.Get("/{id}", h.Units.Get)
		r.Put("/{id}", h.Units.Update)
		r.Delete("/{id}", h.Units.Delete)
		r.Put("/{id}/status", h.Units.UpdateStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(principal.Require)

		r.Route("/allocations", func(r chi.Router) {
			r.Get("/", h.Allocations.List)
			r.Post("/", h.Allocations.Allocate)
			r.Post("/release", h.Allocations.Release)
			r.Post("/release-consumer", h.Allocations.ReleaseConsumer)
			r.Get("/{id}", h.Allocations.Get)
		})

		r.Get("/scan/{code}", h.Scan.Lookup)
	})
}
