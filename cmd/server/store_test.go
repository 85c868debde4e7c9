package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tbourn/car-manager/internal/config"
)

func TestOpenDriver(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		sc   config.StoreConfig
		name string
	}{
		{config.StoreConfig{Driver: config.DriverMemory}, "memory"},
		{config.StoreConfig{Driver: config.DriverSQLite, SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "cars.db")}}, "sqlite"},
	} {
		drv, err := openDriver(ctx, tc.sc)
		if err != nil {
			t.Fatalf("%s: %v", tc.sc.Driver, err)
		}
		if drv.Name() != tc.name {
			t.Fatalf("Name() = %q; want %q", drv.Name(), tc.name)
		}
		if err := drv.Close(); err != nil {
			t.Fatalf("close %s: %v", tc.name, err)
		}
	}

	if _, err := openDriver(ctx, config.StoreConfig{Driver: "redis"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := openDriver(ctx, config.StoreConfig{Driver: config.DriverCosmos, Cosmos: config.CosmosConfig{ConnectionString: "garbage"}}); err == nil {
		t.Fatalf("expected error for malformed cosmos connection string")
	}
}
