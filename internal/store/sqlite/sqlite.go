// Package sqlite is a store.Driver backed by an embedded SQLite file through
// GORM and the pure Go glebarez driver. Databases, collections and documents
// are rows in three tables; document bodies are stored as opaque JSON.
//
// It is the zero-infrastructure backend for local development and
// single-node deployments.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/car-manager/internal/store"
)

type storeDatabase struct {
	ID        string `gorm:"primaryKey;size:255"`
	CreatedAt time.Time
}

func (storeDatabase) TableName() string { return "store_databases" }

type storeCollection struct {
	DatabaseID       string `gorm:"primaryKey;size:255"`
	ID               string `gorm:"primaryKey;size:255"`
	PartitionKeyPath string `gorm:"not null"`
	CreatedAt        time.Time
}

func (storeCollection) TableName() string { return "store_collections" }

type storeDocument struct {
	DatabaseID   string `gorm:"primaryKey;size:255"`
	CollectionID string `gorm:"primaryKey;size:255"`
	PartitionKey string `gorm:"primaryKey;size:255"`
	ID           string `gorm:"primaryKey;size:255;index"`
	Body         []byte `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (storeDocument) TableName() string { return "store_documents" }

// Driver stores documents in SQLite.
type Driver struct {
	db *gorm.DB
}

var _ store.Driver = (*Driver)(nil)

// Open opens (or creates) the SQLite file at path, applies PRAGMAs and
// migrates the document tables.
func Open(path string) (*Driver, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	return New(db)
}

// New wraps an existing GORM handle and migrates the document tables.
func New(db *gorm.DB) (*Driver, error) {
	if err := db.AutoMigrate(&storeDatabase{}, &storeCollection{}, &storeDocument{}); err != nil {
		return nil, err
	}
	return &Driver{db: db}, nil
}

// DB exposes the underlying handle.
func (d *Driver) DB() *gorm.DB { return d.db }

// Name implements store.Driver.
func (d *Driver) Name() string { return "sqlite" }

// Close implements store.Driver.
func (d *Driver) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureDatabase implements store.Driver.
func (d *Driver) EnsureDatabase(ctx context.Context, id string) (store.Database, error) {
	rec := storeDatabase{ID: id, CreatedAt: time.Now().UTC()}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: ensure database %q: %w", id, err)
	}
	return &database{db: d.db, id: id}, nil
}

type database struct {
	db *gorm.DB
	id string
}

func (b *database) ID() string { return b.id }

func (b *database) EnsureCollection(ctx context.Context, id, partitionKeyPath string) (store.Collection, error) {
	rec := storeCollection{
		DatabaseID:       b.id,
		ID:               id,
		PartitionKeyPath: partitionKeyPath,
		CreatedAt:        time.Now().UTC(),
	}
	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: ensure collection %q: %w", id, err)
	}
	var got storeCollection
	if err := b.db.WithContext(ctx).
		Where("database_id = ? AND id = ?", b.id, id).
		Take(&got).Error; err != nil {
		return nil, fmt.Errorf("sqlite: ensure collection %q: %w", id, err)
	}
	if got.PartitionKeyPath != partitionKeyPath {
		return nil, fmt.Errorf("sqlite: collection %q already exists with partition key %q", id, got.PartitionKeyPath)
	}
	return &collection{db: b.db, databaseID: b.id, id: id}, nil
}

type collection struct {
	db         *gorm.DB
	databaseID string
	id         string
}

func (c *collection) ID() string { return c.id }

// exists reports store.ErrCollectionGone when the collection row was removed
// after the handle was issued.
func (c *collection) exists(tx *gorm.DB) error {
	var n int64
	if err := tx.Model(&storeCollection{}).
		Where("database_id = ? AND id = ?", c.databaseID, c.id).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %s/%s: %w", c.databaseID, c.id, store.ErrCollectionGone)
	}
	return nil
}

func (c *collection) scope(tx *gorm.DB, pk, id string) *gorm.DB {
	return tx.Where("database_id = ? AND collection_id = ? AND partition_key = ? AND id = ?",
		c.databaseID, c.id, pk, id)
}

func (c *collection) CreateItem(ctx context.Context, pk, id string, doc []byte) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.exists(tx); err != nil {
			return err
		}
		now := time.Now().UTC()
		rec := storeDocument{
			DatabaseID:   c.databaseID,
			CollectionID: c.id,
			PartitionKey: pk,
			ID:           id,
			Body:         doc,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("sqlite: create %q: %w", id, store.ErrConflict)
			}
			return err
		}
		return nil
	})
}

func (c *collection) ReplaceItem(ctx context.Context, pk, id string, doc []byte) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.exists(tx); err != nil {
			return err
		}
		res := c.scope(tx.Model(&storeDocument{}), pk, id).
			Updates(map[string]any{"body": doc, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("sqlite: replace %q: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (c *collection) DeleteItem(ctx context.Context, pk, id string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.exists(tx); err != nil {
			return err
		}
		res := c.scope(tx, pk, id).Delete(&storeDocument{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("sqlite: delete %q: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (c *collection) QueryItems(ctx context.Context, q store.Query) ([][]byte, error) {
	tx := c.db.WithContext(ctx)
	if err := c.exists(tx); err != nil {
		return nil, err
	}

	var rows []storeDocument
	sel := tx.Select("body").
		Where("database_id = ? AND collection_id = ?", c.databaseID, c.id)
	if q.ID != "" {
		sel = sel.Where("id = ?", q.ID)
	}
	if err := sel.Order("partition_key, id").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Body)
	}
	return out, nil
}

// isUniqueViolation matches primary-key collisions. glebarez/sqlite often
// returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
