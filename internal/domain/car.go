// Package domain defines the records managed by the car manager and the
// payloads used to create or replace them. These types are serialized as
// JSON documents by every store driver, so field names follow the camelCase
// convention of the document store.
package domain

// Car is a vehicle record.
//
// Fields:
//   - ID: immutable identifier, also used as the partition-key value.
//   - Model / Manufacturer: required, non-blank.
//   - Price: non-negative by convention; not enforced by the store layer.
//   - Year: model year; no range is enforced.
type Car struct {
	ID           string  `json:"id"`
	Model        string  `json:"model"`
	Manufacturer string  `json:"manufacturer"`
	Price        float64 `json:"price"`
	Year         int     `json:"year"`
}

// CarInput is the create/replace payload. It carries every Car field except
// the identifier, which is assigned by the server (create) or taken from the
// request path (replace).
type CarInput struct {
	Model        string  `json:"model"        binding:"required,notblank,max=200"  example:"Model 3"`
	Manufacturer string  `json:"manufacturer" binding:"required,notblank,max=200"  example:"Tesla"`
	Price        float64 `json:"price"        binding:"gte=0"                      example:"39990"`
	Year         int     `json:"year"                                              example:"2023"`
}

// ToCar maps the input onto a Car with the given id.
func (in CarInput) ToCar(id string) Car {
	return Car{
		ID:           id,
		Model:        in.Model,
		Manufacturer: in.Manufacturer,
		Price:        in.Price,
		Year:         in.Year,
	}
}
