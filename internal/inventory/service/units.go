package service

import (
	"context"
	"strings"
	"time"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/actor"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// CreateUnitInput is the input for CreateUnit
type CreateUnitInput struct {
	ItemID         string                `json:"-"`
	SerialNumber   string                `json:"serial_number" validate:"required,notblank,max=100"`
	Barcode        string                `json:"barcode" validate:"required,notblank,max=100"`
	Status         repository.UnitStatus `json:"status" validate:"omitempty,oneof=in_stock maintenance retired rented"`
	Location       string                `json:"location" validate:"max=200"`
	WarrantyExpiry *time.Time            `json:"warranty_expiry"`
	Notes          string                `json:"notes" validate:"max=2000"`
}

// UpdateUnitInput carries the editable unit fields
type UpdateUnitInput struct {
	Location       string     `json:"location" validate:"max=200"`
	WarrantyExpiry *time.Time `json:"warranty_expiry"`
	Notes          string     `json:"notes" validate:"max=2000"`
}

// UnitStore is the write and read surface over individual units
type UnitStore struct {
	*Engine
}

// NewUnitStore creates a UnitStore
func NewUnitStore(e *Engine) *UnitStore {
	return &UnitStore{Engine: e}
}

func rentViaAllocation() error {
	return errors.ValidationWithKey("status", "inventory.rent_via_allocation", nil)
}

// CreateUnit adds one operator-entered unit to an item. Units are created in
// stock unless another non-rented status is given; the location defaults to
// the item's.
func (s *UnitStore) CreateUnit(ctx context.Context, in CreateUnitInput) (*repository.Unit, error) {
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	in.Barcode = strings.TrimSpace(in.Barcode)
	switch {
	case in.SerialNumber == "":
		return nil, errors.FieldValidation("serial_number", "is required")
	case in.Barcode == "":
		return nil, errors.FieldValidation("barcode", "is required")
	}
	if in.Status == "" {
		in.Status = repository.UnitInStock
	}
	if !in.Status.Valid() {
		return nil, errors.FieldValidation("status", "must be one of: in_stock, maintenance, retired")
	}
	if in.Status == repository.UnitRented {
		return nil, rentViaAllocation()
	}

	unit := &repository.Unit{
		ItemID:         in.ItemID,
		SerialNumber:   in.SerialNumber,
		Barcode:        in.Barcode,
		Status:         in.Status,
		Location:       strings.TrimSpace(in.Location),
		WarrantyExpiry: in.WarrantyExpiry,
		Notes:          in.Notes,
	}
	err := s.mutateItem(ctx, in.ItemID, func(ctx context.Context) error {
		if unit.Location == "" {
			item, err := s.items.GetByID(ctx, in.ItemID)
			if err != nil {
				return err
			}
			unit.Location = item.Location
		}
		return s.units.Insert(ctx, []*repository.Unit{unit})
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", in.ItemID).Str("serial", in.SerialNumber).Msg("create unit failed")
		return nil, err
	}

	s.logger.Info().Str("item_id", unit.ItemID).Str("unit_id", unit.ID).Str("status", string(unit.Status)).Msg("unit created")
	return unit, nil
}

// GetUnit returns a unit by id
func (s *UnitStore) GetUnit(ctx context.Context, id string) (*repository.Unit, error) {
	var u *repository.Unit
	err := s.read(ctx, func() error {
		var err error
		u, err = s.units.GetByID(ctx, id)
		return err
	})
	return u, err
}

// FindBySerial returns the unit with the given serial number
func (s *UnitStore) FindBySerial(ctx context.Context, serial string) (*repository.Unit, error) {
	var u *repository.Unit
	err := s.read(ctx, func() error {
		var err error
		u, err = s.units.GetBySerial(ctx, serial)
		return err
	})
	return u, err
}

// ListUnitsByItem lists an item's units in creation order; NotFound for an unknown item
func (s *UnitStore) ListUnitsByItem(ctx context.Context, itemID string) ([]repository.Unit, error) {
	var units []repository.Unit
	err := s.read(ctx, func() error {
		if _, err := s.items.Version(ctx, itemID); err != nil {
			return err
		}
		var err error
		units, err = s.units.ListByItem(ctx, itemID)
		return err
	})
	return units, err
}

// UpdateUnit edits location, warranty and notes
func (s *UnitStore) UpdateUnit(ctx context.Context, id string, in UpdateUnitInput) (*repository.Unit, error) {
	unit, err := s.units.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.mutateItem(ctx, unit.ItemID, func(ctx context.Context) error {
		current, err := s.units.GetByID(ctx, id)
		if err != nil {
			return err
		}
		current.Location = strings.TrimSpace(in.Location)
		current.WarrantyExpiry = in.WarrantyExpiry
		current.Notes = in.Notes
		unit = current
		return s.units.Update(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// UpdateUnitStatus moves a unit through the status machine by operator
// action. Units become rented only through allocation. Leaving rented closes
// the unit's active allocation link.
func (s *UnitStore) UpdateUnitStatus(ctx context.Context, id string, status repository.UnitStatus) (*repository.Unit, error) {
	if !status.Valid() {
		return nil, errors.FieldValidation("status", "must be one of: in_stock, rented, maintenance, retired")
	}
	if status == repository.UnitRented {
		return nil, rentViaAllocation()
	}

	unit, err := s.units.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		from       repository.UnitStatus
		released   []string
		releasedBy = actor.FromContext(ctx).Ref()
	)
	err = s.mutateItem(ctx, unit.ItemID, func(ctx context.Context) error {
		current, err := s.units.GetByID(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if from == status {
			unit = current
			return nil
		}
		if !repository.CanTransition(from, status) {
			return errors.PreconditionFailedWithKey("inventory.invalid_transition", map[string]string{
				"from": string(from),
				"to":   string(status),
			})
		}
		if _, err := s.units.Transition(ctx, id, from, status); err != nil {
			return err
		}
		if from == repository.UnitRented {
			if released, err = s.allocations.ReleaseLinks(ctx, []string{id}, releasedBy); err != nil {
				return err
			}
		}
		unit, err = s.units.GetByID(ctx, id)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("unit_id", id).Str("to", string(status)).Msg("unit status change failed")
		return nil, err
	}

	if from == repository.UnitRented && status != from {
		s.publisher.UnitsReleased(ctx, []string{unit.ItemID}, []string{id}, released, releasedBy)
	}
	s.logger.Info().
		Str("item_id", unit.ItemID).
		Str("unit_id", id).
		Str("from", string(from)).
		Str("to", string(status)).
		Msg("unit status changed")
	return unit, nil
}

// DeleteUnit deletes a unit. A rented unit must be released first.
func (s *UnitStore) DeleteUnit(ctx context.Context, id string) error {
	unit, err := s.units.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.mutateItem(ctx, unit.ItemID, func(ctx context.Context) error {
		current, err := s.units.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == repository.UnitRented {
			return errors.PreconditionFailedWithKey("inventory.unit_rented", map[string]string{
				"serial": current.SerialNumber,
			})
		}
		return s.units.Delete(ctx, id)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("unit_id", id).Msg("delete unit failed")
		return err
	}

	s.logger.Info().Str("item_id", unit.ItemID).Str("unit_id", id).Msg("unit deleted")
	return nil
}
