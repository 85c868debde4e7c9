package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/car-manager/internal/domain"
	"github.com/tbourn/car-manager/internal/idgen"
	"github.com/tbourn/car-manager/internal/repo"
	"github.com/tbourn/car-manager/internal/store"
	"github.com/tbourn/car-manager/internal/store/memstore"
)

// ----- Fake repo -----

type fakeCarRepo struct {
	getAllOut []domain.Car
	getAllErr error

	getID  string
	getOut domain.Car
	getOK  bool
	getErr error

	added  []domain.Car
	addErr error

	editID   string
	editItem domain.Car
	editErr  error

	deleteID  string
	deleteErr error
}

func (r *fakeCarRepo) GetAll(ctx context.Context) ([]domain.Car, error) {
	return r.getAllOut, r.getAllErr
}

func (r *fakeCarRepo) GetByID(ctx context.Context, id string) (domain.Car, bool, error) {
	r.getID = id
	return r.getOut, r.getOK, r.getErr
}

func (r *fakeCarRepo) Add(ctx context.Context, items ...domain.Car) error {
	r.added = append(r.added, items...)
	return r.addErr
}

func (r *fakeCarRepo) Edit(ctx context.Context, id string, item domain.Car) error {
	r.editID, r.editItem = id, item
	return r.editErr
}

func (r *fakeCarRepo) Delete(ctx context.Context, id string) error {
	r.deleteID = id
	return r.deleteErr
}

func TestCreate_AssignsIDAndNormalizes(t *testing.T) {
	fr := &fakeCarRepo{}
	s := NewCarService(fr, idgen.Func(func() string { return "id-1" }))

	// Manufacturer uses a combining diaeresis; NFC folds it into a single rune.
	c, err := s.Create(context.Background(), domain.CarInput{Model: "  C4 ", Manufacturer: "Citroe\u0308n", Price: 20000, Year: 2020})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID != "id-1" || c.Model != "C4" || c.Manufacturer != "Citro\u00ebn" {
		t.Fatalf("unexpected car: %+v", c)
	}
	if len(fr.added) != 1 || fr.added[0] != *c {
		t.Fatalf("repo received %+v", fr.added)
	}
}

func TestCreate_ConflictTranslated(t *testing.T) {
	fr := &fakeCarRepo{addErr: store.ErrConflict}
	s := NewCarService(fr, nil)
	if _, err := s.Create(context.Background(), domain.CarInput{Model: "m", Manufacturer: "f"}); !errors.Is(err, ErrCarConflict) {
		t.Fatalf("expected ErrCarConflict, got %v", err)
	}
}

func TestGet(t *testing.T) {
	fr := &fakeCarRepo{getOut: domain.Car{ID: "x"}, getOK: true}
	s := NewCarService(fr, nil)

	c, err := s.Get(context.Background(), " x ")
	if err != nil || c.ID != "x" || fr.getID != "x" {
		t.Fatalf("Get: %+v %v (repo saw %q)", c, err, fr.getID)
	}

	fr.getOK = false
	if _, err := s.Get(context.Background(), "x"); !errors.Is(err, ErrCarNotFound) {
		t.Fatalf("expected ErrCarNotFound, got %v", err)
	}

	// blank ids are absence, not a bad request
	if _, err := s.Get(context.Background(), "  "); !errors.Is(err, ErrCarNotFound) {
		t.Fatalf("expected ErrCarNotFound for blank id, got %v", err)
	}

	boom := errors.Join(store.ErrUnavailable, errors.New("timeout"))
	fr.getErr = boom
	if _, err := s.Get(context.Background(), "x"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("unavailable must pass through, got %v", err)
	}
}

func TestUpdate_ForcesPathID(t *testing.T) {
	fr := &fakeCarRepo{}
	s := NewCarService(fr, nil)
	if err := s.Update(context.Background(), "abc", domain.CarInput{Model: "m", Manufacturer: "f", Price: 1}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if fr.editID != "abc" || fr.editItem.ID != "abc" {
		t.Fatalf("edit id=%q item=%+v", fr.editID, fr.editItem)
	}

	fr.editErr = store.ErrNotFound
	if err := s.Update(context.Background(), "abc", domain.CarInput{}); !errors.Is(err, ErrCarNotFound) {
		t.Fatalf("expected ErrCarNotFound, got %v", err)
	}
	if err := s.Update(context.Background(), "", domain.CarInput{}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	fr := &fakeCarRepo{}
	s := NewCarService(fr, nil)
	if err := s.Delete(context.Background(), "d"); err != nil || fr.deleteID != "d" {
		t.Fatalf("Delete: %v (repo saw %q)", err, fr.deleteID)
	}
	fr.deleteErr = store.ErrNotFound
	if err := s.Delete(context.Background(), "d"); !errors.Is(err, ErrCarNotFound) {
		t.Fatalf("expected ErrCarNotFound, got %v", err)
	}
}

func TestList_PassesThrough(t *testing.T) {
	fr := &fakeCarRepo{getAllOut: []domain.Car{{ID: "1"}, {ID: "2"}}}
	s := NewCarService(fr, nil)
	cs, err := s.List(context.Background())
	if err != nil || len(cs) != 2 {
		t.Fatalf("List: %v %v", cs, err)
	}
}

func TestCarService_WithDocumentRepository(t *testing.T) {
	ctx := context.Background()
	client := store.NewClient(memstore.New())
	r := repo.NewCarRepository(client, store.Addressing{DatabaseID: "db", CollectionID: "cars", PartitionKeyPath: "/id"})
	s := NewCarService(r, idgen.UUIDGenerator{})

	c, err := s.Create(ctx, domain.CarInput{Model: "Model 3", Manufacturer: "Tesla", Price: 39990, Year: 2023})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Update(ctx, c.ID, domain.CarInput{Model: "Model 3", Manufacturer: "Tesla", Price: 35990, Year: 2023}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.Get(ctx, c.ID)
	if err != nil || got.Price != 35990 {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if err := s.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, c.ID); !errors.Is(err, ErrCarNotFound) {
		t.Fatalf("expected ErrCarNotFound, got %v", err)
	}
}
