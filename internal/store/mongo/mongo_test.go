package mongo

import (
	"encoding/json"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tbourn/car-manager/internal/store"
)

func TestEncode_PutsCompoundIDFirst(t *testing.T) {
	d, err := encode("Tesla", "x1", []byte(`{"id":"x1","model":"S","price":80000.5,"year":2021,"_id":"ignored"}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if d[0].Key != "_id" {
		t.Fatalf("first key = %q; want _id", d[0].Key)
	}
	k, ok := d[0].Value.(bson.D)
	if !ok || len(k) != 2 || k[0].Value != "Tesla" || k[1].Value != "x1" {
		t.Fatalf("_id = %#v", d[0].Value)
	}
	for _, e := range d[1:] {
		if e.Key == "_id" {
			t.Fatalf("body _id must be dropped: %#v", d)
		}
	}
}

func TestEncode_RejectsInvalidJSON(t *testing.T) {
	if _, err := encode("a", "a", []byte(`{`)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecode_RoundTripsFields(t *testing.T) {
	d, err := encode("a", "a", []byte(`{"id":"a","model":"3","price":42000,"year":2020}`))
	if err != nil {
		t.Fatal(err)
	}
	// Stored documents are read with _id projected away.
	raw, err := bson.Marshal(d[1:])
	if err != nil {
		t.Fatal(err)
	}
	out, err := decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	var got struct {
		ID    string  `json:"id"`
		Model string  `json:"model"`
		Price float64 `json:"price"`
		Year  int     `json:"year"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", out, err)
	}
	if got.ID != "a" || got.Model != "3" || got.Price != 42000 || got.Year != 2020 {
		t.Fatalf("round trip: %+v from %s", got, out)
	}
}

func TestFilter(t *testing.T) {
	if f := filter(store.All()); len(f) != 0 {
		t.Fatalf("all: %v", f)
	}
	f := filter(store.ByID("x"))
	if len(f) != 1 || f[0].Key != "id" || f[0].Value != "x" {
		t.Fatalf("by id: %v", f)
	}
}
