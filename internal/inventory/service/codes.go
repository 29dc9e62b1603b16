package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/rentora/rentora-backend/internal/inventory/repository"
	"github.com/rentora/rentora-backend/pkg/errors"
)

const barcodeDigits = 12

var barcodeSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(barcodeDigits), nil)

// serialPrefix takes the first n letters or digits of the item name,
// upper-cased and padded with X.
func serialPrefix(name string, n int) string {
	var b strings.Builder
	for _, r := range name {
		if b.Len() >= n {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	for b.Len() < n {
		b.WriteByte('X')
	}
	return b.String()
}

// serialNumber renders <PREFIX><unix-millis><index>
func serialNumber(prefix string, millis int64, index int) string {
	return fmt.Sprintf("%s%d%03d", prefix, millis, index)
}

func randomBarcode() (string, error) {
	n, err := rand.Int(rand.Reader, barcodeSpace)
	if err != nil {
		return "", fmt.Errorf("generating barcode: %w", err)
	}
	return fmt.Sprintf("%0*d", barcodeDigits, n), nil
}

// insertNewUnits creates n in-stock units for item with fresh serials and
// barcodes. firstIndex is the population position of the first new unit.
//
// Each attempt inserts the whole batch under a savepoint. A serial or barcode
// that another writer took in the meantime rolls back that attempt only; the
// codes are regenerated with the timestamp moved forward. After
// BarcodeAttempts failed attempts the call fails with a ConflictError.
func (e *Engine) insertNewUnits(ctx context.Context, item *repository.Item, firstIndex, n int) ([]*repository.Unit, error) {
	prefix := serialPrefix(item.Name, e.opts.SerialPrefixLen)
	millis := e.now().UnixMilli()

	for attempt := 0; attempt < e.opts.BarcodeAttempts; attempt++ {
		units, err := buildUnits(item, prefix, millis+int64(attempt), firstIndex, n)
		if err != nil {
			return nil, err
		}

		err = e.db.Savepoint(ctx, "new_units", func(ctx context.Context) error {
			return e.units.Insert(ctx, units)
		})
		if err == nil {
			return units, nil
		}
		if !isCodeCollision(err) {
			return nil, err
		}
		e.logger.Debug().Err(err).Str("item_id", item.ID).Int("attempt", attempt+1).
			Msg("regenerating colliding unit codes")
	}

	return nil, errors.ConflictWithKey("inventory.barcode_exhausted", nil)
}

// buildUnits renders n units with barcodes unique within the batch
func buildUnits(item *repository.Item, prefix string, millis int64, firstIndex, n int) ([]*repository.Unit, error) {
	units := make([]*repository.Unit, n)
	seen := make(map[string]bool, n)
	for i := range units {
		barcode, err := randomBarcode()
		if err != nil {
			return nil, err
		}
		for seen[barcode] {
			if barcode, err = randomBarcode(); err != nil {
				return nil, err
			}
		}
		seen[barcode] = true

		units[i] = &repository.Unit{
			ItemID:       item.ID,
			SerialNumber: serialNumber(prefix, millis, firstIndex+i),
			Barcode:      barcode,
			Status:       repository.UnitInStock,
			Location:     item.Location,
		}
	}
	return units, nil
}

func isCodeCollision(err error) bool {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.MessageKey == "inventory.serial_taken" || appErr.MessageKey == "inventory.barcode_taken"
}
