package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the SQL backend.
type Config struct {
	Driver string
	DSN    string
}

// Store is the relational inventory store. It also holds the per-type scan
// job rows, which carry the crawl checkpoints.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "tenantscan.db"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database.dsn is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY between
	// concurrent scans.
	if dialector.Name() == DriverSQLite {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	s := &Store{db: db, logger: log}
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates every inventory table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.ScanJob{},
		&models.User{},
		&models.M365Group{},
		&models.SecurityGroup{},
		&models.Team{},
		&models.Membership{},
		&models.SharePointSite{},
		&models.OneDrive{},
		&models.License{},
		&models.Domain{},
		&models.ExchangeMailbox{},
		&models.SharePointSiteUsage{},
		&models.PowerPlatformEnvironment{},
		&models.PowerApp{},
		&models.PowerAutomateFlow{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tx is one page write. All inventory mutations for a page go through the
// same Tx so the page commits or rolls back as a unit.
type Tx struct {
	db *gorm.DB
}

// WriteTx runs fn inside a database transaction.
func (s *Store) WriteTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{db: db})
	})
}

// DeleteAll removes every row of each model's table, in order.
func (s *Store) DeleteAll(ctx context.Context, tables ...any) error {
	return s.WriteTx(ctx, func(tx *Tx) error {
		for _, t := range tables {
			if err := tx.DeleteAll(t); err != nil {
				return err
			}
		}
		return nil
	})
}
