package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentora/rentora-backend/pkg/config"
)

// migration is one schema step, written once per dialect.
type migration struct {
	version  int
	name     string
	postgres string
	sqlite   string
}

var migrations = []migration{
	{
		version: 1,
		name:    "categories",
		postgres: `
CREATE TABLE IF NOT EXISTS categories (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT categories_name_key UNIQUE (name)
)`,
		sqlite: `
CREATE TABLE IF NOT EXISTS categories (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	},
	{
		version: 2,
		name:    "inventory_items",
		postgres: `
CREATE TABLE IF NOT EXISTS inventory_items (
    id                      UUID PRIMARY KEY,
    category_id             UUID NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
    name                    TEXT NOT NULL,
    model                   TEXT NOT NULL DEFAULT '',
    location                TEXT NOT NULL DEFAULT '',
    quantity_in_stock       INTEGER NOT NULL DEFAULT 0 CONSTRAINT items_quantity_in_stock_check CHECK (quantity_in_stock >= 0),
    quantity_rented_out     INTEGER NOT NULL DEFAULT 0 CONSTRAINT items_quantity_rented_check CHECK (quantity_rented_out >= 0),
    quantity_in_maintenance INTEGER NOT NULL DEFAULT 0 CONSTRAINT items_quantity_maintenance_check CHECK (quantity_in_maintenance >= 0),
    version                 BIGINT NOT NULL DEFAULT 0,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_inventory_items_category ON inventory_items(category_id)`,
		sqlite: `
CREATE TABLE IF NOT EXISTS inventory_items (
    id                      TEXT PRIMARY KEY,
    category_id             TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
    name                    TEXT NOT NULL,
    model                   TEXT NOT NULL DEFAULT '',
    location                TEXT NOT NULL DEFAULT '',
    quantity_in_stock       INTEGER NOT NULL DEFAULT 0 CHECK (quantity_in_stock >= 0),
    quantity_rented_out     INTEGER NOT NULL DEFAULT 0 CHECK (quantity_rented_out >= 0),
    quantity_in_maintenance INTEGER NOT NULL DEFAULT 0 CHECK (quantity_in_maintenance >= 0),
    version                 INTEGER NOT NULL DEFAULT 0,
    created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_inventory_items_category ON inventory_items(category_id)`,
	},
	{
		version: 3,
		name:    "inventory_units",
		postgres: `
CREATE TABLE IF NOT EXISTS inventory_units (
    id              UUID PRIMARY KEY,
    item_id         UUID NOT NULL REFERENCES inventory_items(id) ON DELETE CASCADE,
    serial_number   TEXT NOT NULL,
    barcode         TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'in_stock'
                    CONSTRAINT inventory_units_status_check CHECK (status IN ('in_stock', 'rented', 'maintenance', 'retired')),
    location        TEXT NOT NULL DEFAULT '',
    warranty_expiry TIMESTAMPTZ,
    notes           TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT inventory_units_serial_number_key UNIQUE (serial_number),
    CONSTRAINT inventory_units_barcode_key UNIQUE (barcode)
);
CREATE INDEX IF NOT EXISTS idx_inventory_units_item_status ON inventory_units(item_id, status)`,
		sqlite: `
CREATE TABLE IF NOT EXISTS inventory_units (
    id              TEXT PRIMARY KEY,
    item_id         TEXT NOT NULL REFERENCES inventory_items(id) ON DELETE CASCADE,
    serial_number   TEXT NOT NULL UNIQUE,
    barcode         TEXT NOT NULL UNIQUE,
    status          TEXT NOT NULL DEFAULT 'in_stock'
                    CHECK (status IN ('in_stock', 'rented', 'maintenance', 'retired')),
    location        TEXT NOT NULL DEFAULT '',
    warranty_expiry DATETIME,
    notes           TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_inventory_units_item_status ON inventory_units(item_id, status)`,
	},
	{
		version: 4,
		name:    "allocations",
		postgres: `
CREATE TABLE IF NOT EXISTS allocations (
    id            UUID PRIMARY KEY,
    item_id       UUID NOT NULL REFERENCES inventory_items(id) ON DELETE CASCADE,
    consumer_type TEXT NOT NULL
                  CONSTRAINT allocations_consumer_type_check CHECK (consumer_type IN ('rental', 'sale', 'service')),
    consumer_ref  TEXT NOT NULL,
    quantity      INTEGER NOT NULL CONSTRAINT allocations_quantity_check CHECK (quantity > 0),
    allocated_by  TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    released_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_allocations_consumer ON allocations(consumer_type, consumer_ref);
CREATE TABLE IF NOT EXISTS allocation_units (
    allocation_id UUID NOT NULL REFERENCES allocations(id) ON DELETE CASCADE,
    unit_id       UUID NOT NULL REFERENCES inventory_units(id) ON DELETE CASCADE,
    released_at   TIMESTAMPTZ,
    released_by   TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (allocation_id, unit_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS allocation_units_active_unit_idx
    ON allocation_units(unit_id) WHERE released_at IS NULL`,
		sqlite: `
CREATE TABLE IF NOT EXISTS allocations (
    id            TEXT PRIMARY KEY,
    item_id       TEXT NOT NULL REFERENCES inventory_items(id) ON DELETE CASCADE,
    consumer_type TEXT NOT NULL CHECK (consumer_type IN ('rental', 'sale', 'service')),
    consumer_ref  TEXT NOT NULL,
    quantity      INTEGER NOT NULL CHECK (quantity > 0),
    allocated_by  TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    released_at   DATETIME
);
CREATE INDEX IF NOT EXISTS idx_allocations_consumer ON allocations(consumer_type, consumer_ref);
CREATE TABLE IF NOT EXISTS allocation_units (
    allocation_id TEXT NOT NULL REFERENCES allocations(id) ON DELETE CASCADE,
    unit_id       TEXT NOT NULL REFERENCES inventory_units(id) ON DELETE CASCADE,
    released_at   DATETIME,
    released_by   TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (allocation_id, unit_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS allocation_units_active_unit_idx
    ON allocation_units(unit_id) WHERE released_at IS NULL`,
	},
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Migrate brings the schema up to date. Each pending step runs in its own
// transaction together with its schema_migrations row.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var applied []int
	if err := db.SelectContext(ctx, &applied, "SELECT version FROM schema_migrations"); err != nil {
		return fmt.Errorf("reading schema_migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.version] {
			continue
		}

		ddl := m.postgres
		if db.driver == config.DriverSQLite {
			ddl = m.sqlite
		}

		err := db.Transaction(ctx, func(ctx context.Context) error {
			q := db.Q(ctx)
			for _, stmt := range splitStatements(ddl) {
				if _, err := q.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
				}
			}
			_, err := q.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name)
			return err
		})
		if err != nil {
			return err
		}

		db.logger.Info().Int("version", m.version).Str("name", m.name).Msg("applied migration")
	}

	return nil
}

// splitStatements splits a DDL block on semicolons. The DDL above holds no
// string literals containing ';'.
func splitStatements(ddl string) []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out
}
