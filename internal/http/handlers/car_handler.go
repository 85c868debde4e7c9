// Car HTTP handlers.
//
// This file exposes REST endpoints for car resources:
//   - GET    /car        (list, optional pagination)
//   - GET    /car/{id}   (read)
//   - POST   /car        (create)
//   - PUT    /car/{id}   (replace)
//   - DELETE /car/{id}   (delete)
//
// Handlers are transport-thin: they validate input, call the car service,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/car-manager/internal/domain"
	"github.com/tbourn/car-manager/internal/http/middleware"
	"github.com/tbourn/car-manager/internal/utils"
)

// CarService defines the car lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation.
type CarService interface {
	List(ctx context.Context) ([]domain.Car, error)
	Get(ctx context.Context, id string) (*domain.Car, error)
	Create(ctx context.Context, in domain.CarInput) (*domain.Car, error)
	Update(ctx context.Context, id string, in domain.CarInput) error
	Delete(ctx context.Context, id string) error
}

// Handlers groups the car endpoints.
type Handlers struct {
	cars CarService
}

// New constructs a Handlers instance bound to the car service.
func New(cars CarService) *Handlers {
	return &Handlers{cars: cars}
}

// HeaderTotalCount carries the unpaginated size of a list response.
const HeaderTotalCount = "X-Total-Count"

const maxPageSize = 100

// pageParams reads page/page_size. paged is false when neither is present,
// in which case the full list is returned.
func pageParams(c *gin.Context) (page, pageSize int, paged bool) {
	qp, qs := c.Query("page"), c.Query("page_size")
	if qp == "" && qs == "" {
		return 0, 0, false
	}
	page = utils.AtoiDefault(qp, 1)
	pageSize = utils.AtoiDefault(qs, 20)
	return page, utils.Clamp(pageSize, 1, maxPageSize), true
}

// ListCars godoc
// @ID          listCars
// @Summary     List cars
// @Description Returns every car. When page or page_size is given, returns that slice and the total in X-Total-Count.
// @Tags        Cars
// @Produce     json
//
// @Param       page       query  int  false  "Page number (1-based)"       minimum(1)
// @Param       page_size  query  int  false  "Items per page (max 100)"    minimum(1) maximum(100)
//
// @Success     200  {array}   domain.Car
// @Header      200  {integer} X-Total-Count "Total number of cars"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /car [get]
func (h *Handlers) ListCars(c *gin.Context) {
	cars, err := h.cars.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}

	c.Header(HeaderTotalCount, strconv.Itoa(len(cars)))
	if page, size, paged := pageParams(c); paged {
		cars = utils.Page(cars, page, size)
	}
	middleware.LoggerFrom(c).Debug().Int("count", len(cars)).Msg("returning cars")
	ok(c, http.StatusOK, cars)
}

// GetCar godoc
// @ID          getCar
// @Summary     Get a car
// @Tags        Cars
// @Produce     json
//
// @Param       id   path  string  true  "Car ID"
//
// @Success     200  {object}  domain.Car
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /car/{id} [get]
func (h *Handlers) GetCar(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	car, err := h.cars.Get(c.Request.Context(), id)
	if err != nil {
		if status, _ := classify(err); status == http.StatusNotFound {
			middleware.LoggerFrom(c).Warn().Str("car_id", id).Msg("car not found")
		}
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, car)
}

// CreateCar godoc
// @ID          createCar
// @Summary     Create a car
// @Description Assigns a new id and stores the car. The Location header points at the new resource.
// @Tags        Cars
// @Accept      json
// @Produce     json
//
// @Param       body  body  domain.CarInput  true  "Car payload"
//
// @Success     201  {object}  domain.Car
// @Header      201  {string}  Location  "URL of the created car"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse  "Conflict"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /car [post]
func (h *Handlers) CreateCar(c *gin.Context) {
	var in domain.CarInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("invalid car payload")
		fail(c, http.StatusBadRequest, ErrCodeInvalidInput, bindMessage(err))
		return
	}

	car, err := h.cars.Create(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}

	middleware.LoggerFrom(c).Info().Str("car_id", car.ID).Msg("car created")
	c.Header("Location", path.Join(c.Request.URL.Path, car.ID))
	ok(c, http.StatusCreated, car)
}

// UpdateCar godoc
// @ID          updateCar
// @Summary     Replace a car
// @Description Replaces every field of the car. The id comes from the path.
// @Tags        Cars
// @Accept      json
//
// @Param       id    path  string           true  "Car ID"
// @Param       body  body  domain.CarInput  true  "Car payload"
//
// @Success     204  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /car/{id} [put]
func (h *Handlers) UpdateCar(c *gin.Context) {
	var in domain.CarInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("invalid car payload")
		fail(c, http.StatusBadRequest, ErrCodeInvalidInput, bindMessage(err))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if err := h.cars.Update(c.Request.Context(), id, in); err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().Str("car_id", id).Msg("car replaced")
	noContent(c)
}

// DeleteCar godoc
// @ID          deleteCar
// @Summary     Delete a car
// @Tags        Cars
//
// @Param       id   path  string  true  "Car ID"
//
// @Success     204  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Blank id"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /car/{id} [delete]
func (h *Handlers) DeleteCar(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := h.cars.Delete(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().Str("car_id", id).Msg("car deleted")
	noContent(c)
}
