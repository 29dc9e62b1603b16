package service

import (
	"context"
	"strings"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/errors"
)

// Lookup resolves scanned codes to unit snapshots. It never writes.
type Lookup struct {
	*Engine
}

// NewLookup creates a Lookup
func NewLookup(e *Engine) *Lookup {
	return &Lookup{Engine: e}
}

// Lookup resolves a serial number or barcode
func (s *Lookup) Lookup(ctx context.Context, code string) (*repository.UnitSnapshot, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.FieldValidation("code", "is required")
	}

	var snap *repository.UnitSnapshot
	err := s.read(ctx, func() error {
		var err error
		snap, err = s.units.Snapshot(ctx, code)
		return err
	})
	return snap, err
}
