package main

import (
	"context"
	"fmt"

	"github.com/tbourn/car-manager/internal/config"
	"github.com/tbourn/car-manager/internal/store"
	"github.com/tbourn/car-manager/internal/store/cosmos"
	"github.com/tbourn/car-manager/internal/store/dynamo"
	"github.com/tbourn/car-manager/internal/store/firestore"
	"github.com/tbourn/car-manager/internal/store/memstore"
	"github.com/tbourn/car-manager/internal/store/mongo"
	"github.com/tbourn/car-manager/internal/store/sqlite"
)

// openDriver connects the backend selected by STORE_DRIVER.
func openDriver(ctx context.Context, sc config.StoreConfig) (store.Driver, error) {
	switch sc.Driver {
	case config.DriverCosmos:
		return cosmos.New(sc.Cosmos.ConnectionString)
	case config.DriverMongo:
		return mongo.Connect(ctx, sc.Mongo.URI)
	case config.DriverDynamoDB:
		return dynamo.New(ctx, sc.Dynamo.Region, sc.Dynamo.Endpoint)
	case config.DriverFirestore:
		return firestore.New(ctx, sc.Firestore.ProjectID, sc.Firestore.CredentialsFile)
	case config.DriverSQLite:
		return sqlite.Open(sc.SQLite.Path)
	case config.DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}
