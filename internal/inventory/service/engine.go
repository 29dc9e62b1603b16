// Package service implements the inventory engine: the unit store, the item
// ledger, categories, reconciliation, allocation and scan lookup.
//
// Every write that touches an item's units runs in one transaction that
// starts by bumping the item's version (the per-item row lock) and ends by
// recomputing the item's cached counters from its units. Items are always
// locked in ascending id order.
package service

import (
	"context"
	"time"

	"github.com/rentora/rentora-backend/internal/inventory/cache"
	"github.com/rentora/rentora-backend/internal/inventory/events"
	"github.com/rentora/rentora-backend/internal/inventory/locking"
	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/config"
	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/logger"
)

// Options tunes the engine
type Options struct {
	// SerialPrefixLen is the number of item-name characters leading generated serials
	SerialPrefixLen int
	// BarcodeAttempts bounds regeneration of colliding serials and barcodes
	BarcodeAttempts int
	ReadRetry       database.RetryPolicy
}

// DefaultOptions are used for anything left zero
var DefaultOptions = Options{
	SerialPrefixLen: 3,
	BarcodeAttempts: 5,
	ReadRetry:       database.DefaultRetryPolicy,
}

// OptionsFromConfig maps the engine config section to Options
func OptionsFromConfig(cfg *config.EngineConfig) Options {
	return Options{
		SerialPrefixLen: cfg.SerialPrefixLen,
		BarcodeAttempts: cfg.BarcodeAttempts,
		ReadRetry: database.RetryPolicy{
			Attempts: cfg.ReadRetries,
			MaxWait:  cfg.ReadRetryMaxWait,
		},
	}
}

// Engine holds the storage and coordination shared by the inventory services
type Engine struct {
	db          *database.DB
	categories  *repository.CategoryRepository
	items       *repository.ItemRepository
	units       *repository.UnitRepository
	allocations *repository.AllocationRepository
	locker      locking.Locker
	cache       cache.AvailabilityCache
	publisher   *events.InventoryEventPublisher
	logger      *logger.Logger
	opts        Options
	now         func() time.Time
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithLocker sets the item locker. Defaults to an in-process locker.
func WithLocker(l locking.Locker) EngineOption {
	return func(e *Engine) { e.locker = l }
}

// WithCache sets the availability cache. Defaults to no caching.
func WithCache(c cache.AvailabilityCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithPublisher sets the event publisher. Without one events are dropped.
func WithPublisher(p *events.InventoryEventPublisher) EngineOption {
	return func(e *Engine) { e.publisher = p }
}

// WithClock sets the time source used for generated serials
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithOptions overrides the engine options
func WithOptions(o Options) EngineOption {
	return func(e *Engine) { e.opts = o }
}

// NewEngine builds the shared engine on top of db
func NewEngine(db *database.DB, log *logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		db:          db,
		categories:  repository.NewCategoryRepository(db),
		items:       repository.NewItemRepository(db),
		units:       repository.NewUnitRepository(db),
		allocations: repository.NewAllocationRepository(db),
		locker:      locking.NewLocalLocker(0),
		cache:       cache.NopCache{},
		logger:      log,
		opts:        DefaultOptions,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.opts = e.opts.withDefaults()
	return e
}

func (o Options) withDefaults() Options {
	if o.SerialPrefixLen <= 0 {
		o.SerialPrefixLen = DefaultOptions.SerialPrefixLen
	}
	if o.BarcodeAttempts <= 0 {
		o.BarcodeAttempts = DefaultOptions.BarcodeAttempts
	}
	if o.ReadRetry.Attempts <= 0 {
		o.ReadRetry = DefaultOptions.ReadRetry
	}
	return o
}

// mutateItems runs fn in one transaction holding the locks of the given
// items. The counters of every locked item are refreshed before commit.
func (e *Engine) mutateItems(ctx context.Context, itemIDs []string, fn func(ctx context.Context) error) error {
	ids := locking.SortedUnique(itemIDs)

	unlock, err := locking.MultiLock(ctx, e.locker, ids)
	if err != nil {
		return err
	}
	defer unlock()

	return e.db.Transaction(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if err := e.items.Lock(ctx, id); err != nil {
				return err
			}
		}
		if err := fn(ctx); err != nil {
			return err
		}
		for _, id := range ids {
			if err := e.items.RefreshCounters(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// mutateItem is mutateItems for a single item
func (e *Engine) mutateItem(ctx context.Context, itemID string, fn func(ctx context.Context) error) error {
	return e.mutateItems(ctx, []string{itemID}, fn)
}

// read retries an idempotent read on transient storage errors
func (e *Engine) read(ctx context.Context, fn func() error) error {
	return database.RetryRead(ctx, e.opts.ReadRetry, fn)
}

// Services bundles the inventory services built on one Engine
type Services struct {
	Units      *UnitStore
	Ledger     *Ledger
	Categories *Categories
	Reconciler *Reconciler
	Allocator  *Allocator
	Lookup     *Lookup
}

// NewServices builds every service on e
func NewServices(e *Engine) *Services {
	reconciler := NewReconciler(e)
	return &Services{
		Units:      NewUnitStore(e),
		Ledger:     NewLedger(e, reconciler),
		Categories: NewCategories(e),
		Reconciler: reconciler,
		Allocator:  NewAllocator(e),
		Lookup:     NewLookup(e),
	}
}
