package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/car-manager/internal/domain"
	"github.com/tbourn/car-manager/internal/services"
	"github.com/tbourn/car-manager/internal/store"
)

type fakeCars struct {
	listRes   []domain.Car
	listErr   error
	getRes    *domain.Car
	getErr    error
	createErr error
	updErr    error
	delErr    error

	gotID    string
	gotInput domain.CarInput
}

func (f *fakeCars) List(context.Context) ([]domain.Car, error) { return f.listRes, f.listErr }
func (f *fakeCars) Get(_ context.Context, id string) (*domain.Car, error) {
	f.gotID = id
	return f.getRes, f.getErr
}
func (f *fakeCars) Create(_ context.Context, in domain.CarInput) (*domain.Car, error) {
	f.gotInput = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	c := in.ToCar("new-id")
	return &c, nil
}
func (f *fakeCars) Update(_ context.Context, id string, in domain.CarInput) error {
	f.gotID, f.gotInput = id, in
	return f.updErr
}
func (f *fakeCars) Delete(_ context.Context, id string) error {
	f.gotID = id
	return f.delErr
}

func newCarRouter(t *testing.T, f *fakeCars) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		t.Fatalf("register validators: %v", err)
	}
	h := New(f)
	r := gin.New()
	r.GET("/car", h.ListCars)
	r.GET("/car/:id", h.GetCar)
	r.POST("/car", h.CreateCar)
	r.PUT("/car/:id", h.UpdateCar)
	r.DELETE("/car/:id", h.DeleteCar)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, w.Body.String())
	}
	return er.Code
}

func TestListCars_AllAndPaged(t *testing.T) {
	f := &fakeCars{listRes: []domain.Car{
		{ID: "a", Model: "A"}, {ID: "b", Model: "B"}, {ID: "c", Model: "C"},
	}}
	r := newCarRouter(t, f)

	w := serve(r, http.MethodGet, "/car", "")
	var all []domain.Car
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil || len(all) != 3 {
		t.Fatalf("list all: %v %s", err, w.Body.String())
	}
	if w.Header().Get(HeaderTotalCount) != "3" {
		t.Fatalf("total = %q", w.Header().Get(HeaderTotalCount))
	}

	w = serve(r, http.MethodGet, "/car?page=2&page_size=2", "")
	var page []domain.Car
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if len(page) != 1 || page[0].ID != "c" {
		t.Fatalf("page 2: %+v", page)
	}
	if w.Header().Get(HeaderTotalCount) != "3" {
		t.Fatalf("paged total = %q", w.Header().Get(HeaderTotalCount))
	}

	w = serve(r, http.MethodGet, "/car?page=9", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("past the end should be [], got %s", w.Body.String())
	}
}

func TestListCars_StoreUnavailable(t *testing.T) {
	r := newCarRouter(t, &fakeCars{listErr: store.Unavailable(errors.New("timeout"))})
	w := serve(r, http.MethodGet, "/car", "")
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != ErrCodeUnavailable {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestGetCar(t *testing.T) {
	f := &fakeCars{getRes: &domain.Car{ID: "x1", Model: "Golf", Manufacturer: "VW", Year: 2019}}
	r := newCarRouter(t, f)

	w := serve(r, http.MethodGet, "/car/x1", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"model":"Golf"`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if f.gotID != "x1" {
		t.Fatalf("service got id %q", f.gotID)
	}

	f.getRes, f.getErr = nil, services.ErrCarNotFound
	w = serve(r, http.MethodGet, "/car/x2", "")
	if w.Code != http.StatusNotFound || errorCode(t, w) != ErrCodeNotFound {
		t.Fatalf("missing: %d %s", w.Code, w.Body.String())
	}
}

func TestCreateCar(t *testing.T) {
	f := &fakeCars{}
	r := newCarRouter(t, f)

	w := serve(r, http.MethodPost, "/car", `{"model":"Civic","manufacturer":"Honda","price":21000,"year":2020}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/car/new-id" {
		t.Fatalf("Location = %q", loc)
	}
	if f.gotInput.Manufacturer != "Honda" || f.gotInput.Price != 21000 {
		t.Fatalf("service input: %+v", f.gotInput)
	}
}

func TestCreateCar_Validation(t *testing.T) {
	r := newCarRouter(t, &fakeCars{})

	cases := map[string]struct {
		body string
		want string
	}{
		"missing model":  {`{"manufacturer":"Honda"}`, "model is required"},
		"blank maker":    {`{"model":"Civic","manufacturer":"   "}`, "manufacturer is required"},
		"negative price": {`{"model":"Civic","manufacturer":"Honda","price":-1}`, "price must be >= 0"},
		"bad json":       {`{"model":`, "invalid JSON body"},
		"wrong type":     {`{"model":"Civic","manufacturer":"Honda","year":"new"}`, "invalid JSON body"},
	}
	for name, tc := range cases {
		w := serve(r, http.MethodPost, "/car", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", name, w.Code)
		}
		var er ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &er)
		if er.Code != ErrCodeInvalidInput || !strings.Contains(er.Message, tc.want) {
			t.Fatalf("%s: got %+v; want message containing %q", name, er, tc.want)
		}
	}
}

func TestCreateCar_Conflict(t *testing.T) {
	r := newCarRouter(t, &fakeCars{createErr: services.ErrCarConflict})
	w := serve(r, http.MethodPost, "/car", `{"model":"Civic","manufacturer":"Honda"}`)
	if w.Code != http.StatusConflict || errorCode(t, w) != ErrCodeConflict {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestUpdateCar(t *testing.T) {
	f := &fakeCars{}
	r := newCarRouter(t, f)

	w := serve(r, http.MethodPut, "/car/abc", `{"model":"Polo","manufacturer":"VW","year":2018}`)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
	if f.gotID != "abc" || f.gotInput.Model != "Polo" {
		t.Fatalf("service got %q %+v", f.gotID, f.gotInput)
	}

	f.updErr = services.ErrCarNotFound
	w = serve(r, http.MethodPut, "/car/abc", `{"model":"Polo","manufacturer":"VW"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", w.Code)
	}

	w = serve(r, http.MethodPut, "/car/abc", `{"model":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid: %d", w.Code)
	}
}

func TestDeleteCar(t *testing.T) {
	f := &fakeCars{}
	r := newCarRouter(t, f)

	if w := serve(r, http.MethodDelete, "/car/abc", ""); w.Code != http.StatusNoContent {
		t.Fatalf("got %d", w.Code)
	}

	for err, status := range map[error]int{
		services.ErrCarNotFound:                http.StatusNotFound,
		services.ErrInvalidID:                  http.StatusBadRequest,
		store.Unavailable(errors.New("reset")): http.StatusServiceUnavailable,
		errors.New("unexpected"):               http.StatusInternalServerError,
	} {
		f.delErr = err
		if w := serve(r, http.MethodDelete, "/car/abc", ""); w.Code != status {
			t.Fatalf("%v: got %d; want %d", err, w.Code, status)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{store.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{store.ErrConflict, http.StatusConflict, ErrCodeConflict},
		{store.ErrInvalidID, http.StatusBadRequest, ErrCodeBadRequest},
		{store.ErrUnavailable, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{context.Canceled, http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("classify(%v) = %d %q; want %d %q", tc.err, status, code, tc.status, tc.code)
		}
	}
}
