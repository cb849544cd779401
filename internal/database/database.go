package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bitfleet/bitfleet/internal/gofer"
	"github.com/bitfleet/bitfleet/internal/portfolio"
	"github.com/bitfleet/bitfleet/internal/positions"
	"github.com/bitfleet/bitfleet/internal/rules"
)

// NewDatabase opens the embedded store at the given DSN and migrates every
// schema. One connection is opened per process and injected into each
// service; no package holds a database singleton.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.AutoMigrate(
		&positions.Position{},
		&positions.Lot{},
		&portfolio.Portfolio{},
		&portfolio.Wallet{},
		&rules.Rule{},
		&gofer.ProposedOrder{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate schemas: %w", err)
	}

	return db, nil
}
