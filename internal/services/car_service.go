// Package services – CarService
//
// CarService sits between the HTTP handlers and the car repository. It owns
// identifier assignment on create, normalizes the free-text fields of the
// payload, and translates repository/store errors into the service-level
// errors declared in errors.go so handlers can map them consistently.
package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/car-manager/internal/domain"
	"github.com/tbourn/car-manager/internal/idgen"
	"github.com/tbourn/car-manager/internal/store"
)

// CarRepo is the repository contract required by CarService.
type CarRepo interface {
	GetAll(ctx context.Context) ([]domain.Car, error)
	GetByID(ctx context.Context, id string) (domain.Car, bool, error)
	Add(ctx context.Context, items ...domain.Car) error
	Edit(ctx context.Context, id string, item domain.Car) error
	Delete(ctx context.Context, id string) error
}

// CarService provides the car lifecycle operations.
type CarService struct {
	// Repo persists cars.
	Repo CarRepo
	// IDs issues identifiers for new cars.
	IDs idgen.Generator
}

// NewCarService constructs a CarService. A nil generator defaults to random UUIDs.
func NewCarService(r CarRepo, ids idgen.Generator) *CarService {
	if ids == nil {
		ids = idgen.UUIDGenerator{}
	}
	return &CarService{Repo: r, IDs: ids}
}

// List returns every car.
func (s *CarService) List(ctx context.Context) ([]domain.Car, error) {
	return s.Repo.GetAll(ctx)
}

// Get returns the car with the given id, or ErrCarNotFound. A blank id
// names no car and is reported the same way.
func (s *CarService) Get(ctx context.Context, id string) (*domain.Car, error) {
	c, ok, err := s.Repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, translate(err)
	}
	if !ok {
		return nil, ErrCarNotFound
	}
	return &c, nil
}

// Create assigns a fresh id to the input and persists it.
func (s *CarService) Create(ctx context.Context, in domain.CarInput) (*domain.Car, error) {
	c := normalize(in).ToCar(s.IDs.Next())
	if err := s.Repo.Add(ctx, c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// Update replaces the car at id with the input.
func (s *CarService) Update(ctx context.Context, id string, in domain.CarInput) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}
	return translate(s.Repo.Edit(ctx, id, normalize(in).ToCar(id)))
}

// Delete removes the car at id.
func (s *CarService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}
	return translate(s.Repo.Delete(ctx, id))
}

// translate maps store outcomes to service errors. Anything else (including
// store.ErrUnavailable and store.ErrConsistency) is returned unchanged.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrCarNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrCarConflict
	case errors.Is(err, store.ErrInvalidID):
		return ErrInvalidID
	default:
		return err
	}
}

// normalize trims the free-text fields and puts them in Unicode NFC so that
// visually identical names are stored identically.
func normalize(in domain.CarInput) domain.CarInput {
	in.Model = norm.NFC.String(strings.TrimSpace(in.Model))
	in.Manufacturer = norm.NFC.String(strings.TrimSpace(in.Manufacturer))
	return in
}
