package repo

import (
	"github.com/tbourn/car-manager/internal/domain"
	"github.com/tbourn/car-manager/internal/store"
)

// CarIdentity reads and sets Car ids.
var CarIdentity = Identity[domain.Car]{
	ID: func(c domain.Car) string { return c.ID },
	WithID: func(c domain.Car, id string) domain.Car {
		c.ID = id
		return c
	},
}

// CarRepository is the repository used for vehicle records.
type CarRepository = Repository[domain.Car]

// NewCarRepository returns the document-store-backed car repository.
func NewCarRepository(client *store.Client, addr store.Addressing) *DocumentRepository[domain.Car] {
	return NewDocumentRepository(client, addr, CarIdentity)
}
