package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/storage/memory"
)

var now = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

type api struct {
	router http.Handler
	store  *memory.Store
	svc    *inventory.Service
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newAPI(t *testing.T, opts ...func(*v1.RouterConfig)) *api {
	t.Helper()

	store := memory.New()
	svc := inventory.NewService(store, store, store, store,
		inventory.WithNumberGenerator(store),
		inventory.WithIncidentRecorder(store),
		inventory.WithClock(func() time.Time { return now }),
	)
	cfg := v1.RouterConfig{
		Service:     svc,
		Idempotency: memory.NewIdempotencyStore(),
		Clock:       func() time.Time { return now },
		Mode:        gin.TestMode,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &api{router: v1.NewRouter(cfg), store: store, svc: svc}
}

func (a *api) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *api) registerItem(t *testing.T) dto.ItemResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/items", map[string]any{"name": "Olive oil", "unit": "l"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.ItemResponse](t, w)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health/ready", nil).Code)

	down := newAPI(t, func(c *v1.RouterConfig) { c.DB = failingPinger{} })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/health/ready", nil).Code)
}

func TestStockInAndOut(t *testing.T) {
	a := newAPI(t)
	item := a.registerItem(t)
	actor := id.New()

	w := a.do(t, http.MethodPost, "/api/v1/stock/in", map[string]any{
		"itemId":      item.ID,
		"quantity":    5,
		"expiryDate":  "2025-04-01",
		"stockInDate": "2025-03-01",
	}, middleware.HeaderActorID, actor.String())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	in := decode[dto.TransactionResponse](t, w)
	assert.Equal(t, "IN-2025-00001", in.Number)
	assert.Equal(t, "in", in.Type)
	assert.Equal(t, now, in.TransactionDate)
	require.NotNil(t, in.ActorID)
	assert.Equal(t, actor.String(), *in.ActorID)
	require.Len(t, in.Items, 1)
	require.NotNil(t, in.Items[0].ExpiryDate)
	assert.Equal(t, "2025-04-01", *in.Items[0].ExpiryDate)
	assert.Equal(t, types.NewQuantity(5), in.Quantity)

	w = a.do(t, http.MethodPost, "/api/v1/stock/in", map[string]any{
		"itemId":   item.ID,
		"quantity": "2.5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/stock/out", map[string]any{
		"itemId":   item.ID,
		"quantity": 6,
		"reason":   "banquet",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	out := decode[dto.TransactionResponse](t, w)
	assert.Equal(t, "OUT-2025-00001", out.Number)
	require.Len(t, out.Items, 2)
	assert.Equal(t, types.NewQuantity(5), out.Items[0].Quantity)
	assert.Equal(t, types.MustQuantity("1"), out.Items[1].Quantity)
	assert.Equal(t, types.MustQuantity("1.5"), out.Quantity)

	w = a.do(t, http.MethodGet, "/api/v1/items/"+item.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.MustQuantity("1.5"), decode[dto.ItemResponse](t, w).Quantity)

	w = a.do(t, http.MethodGet, "/api/v1/items/"+item.ID+"/fifo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	fifo := decode[dto.ListResponse[dto.BatchResponse]](t, w)
	require.Len(t, fifo.Items, 1)
	assert.Equal(t, types.MustQuantity("1.5"), fifo.Items[0].Quantity)

	w = a.do(t, http.MethodGet, "/api/v1/items/"+item.ID+"/batches?includeEmpty=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.ListResponse[dto.BatchResponse]](t, w).Items, 2)

	w = a.do(t, http.MethodGet, "/api/v1/transactions/"+out.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, out.Number, decode[dto.TransactionResponse](t, w).Number)

	w = a.do(t, http.MethodGet, "/api/v1/items/"+item.ID+"/history?type=out", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[dto.ListResponse[dto.HistoryEntryResponse]](t, w)
	require.Len(t, history.Items, 2)
	assert.Equal(t, "OUT-2025-00001", history.Items[0].TransactionNumber)

	w = a.do(t, http.MethodPost, "/api/v1/items/"+item.ID+"/reconcile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[inventory.ReconcileReport](t, w)
	assert.True(t, report.Consistent)
}

func TestStockOut_InsufficientStock(t *testing.T) {
	a := newAPI(t)
	item := a.registerItem(t)

	w := a.do(t, http.MethodPost, "/api/v1/stock/out", map[string]any{"itemId": item.ID, "quantity": 1})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := decode[dto.ErrorResponse](t, w)
	assert.Equal(t, apperror.CodeInsufficientStock, body.Code)
	assert.Equal(t, 0, a.store.TransactionCount())
}

func TestValidationErrors(t *testing.T) {
	a := newAPI(t)
	item := a.registerItem(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		header []string
	}{
		{"zero quantity", http.MethodPost, "/api/v1/stock/in", map[string]any{"itemId": item.ID, "quantity": 0}, nil},
		{"negative quantity", http.MethodPost, "/api/v1/stock/out", map[string]any{"itemId": item.ID, "quantity": -2}, nil},
		{"bad item id", http.MethodPost, "/api/v1/stock/in", map[string]any{"itemId": "nope", "quantity": 1}, nil},
		{"bad expiry", http.MethodPost, "/api/v1/stock/in", map[string]any{"itemId": item.ID, "quantity": 1, "expiryDate": "01/04/2025"}, nil},
		{"bad path id", http.MethodGet, "/api/v1/items/xyz", nil, nil},
		{"bad history type", http.MethodGet, "/api/v1/items/" + item.ID + "/history?type=transfer", nil, nil},
		{"bad actor", http.MethodGet, "/api/v1/items", nil, []string{middleware.HeaderActorID, "someone"}},
		{"bad window", http.MethodGet, "/api/v1/batches/expiring?within=soon", nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(t, tc.method, tc.path, tc.body, tc.header...)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, apperror.CodeValidation, decode[dto.ErrorResponse](t, w).Code)
		})
	}
}

func TestNotFound(t *testing.T) {
	a := newAPI(t)

	w := a.do(t, http.MethodGet, "/api/v1/items/"+id.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/stock/in", map[string]any{"itemId": id.New().String(), "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIdempotentStockOut(t *testing.T) {
	a := newAPI(t)
	item := a.registerItem(t)
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/stock/in",
		map[string]any{"itemId": item.ID, "quantity": 10}).Code)

	body := map[string]any{"itemId": item.ID, "quantity": 4}
	first := a.do(t, http.MethodPost, "/api/v1/stock/out", body, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := a.do(t, http.MethodPost, "/api/v1/stock/out", body, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	got, err := a.svc.GetItem(context.Background(), id.MustParse(item.ID))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(6), got.Quantity)

	mismatch := a.do(t, http.MethodPost, "/api/v1/stock/out",
		map[string]any{"itemId": item.ID, "quantity": 5}, middleware.HeaderIdempotencyKey, "k-1")
	assert.Equal(t, http.StatusConflict, mismatch.Code)
}

func TestIdempotentFailureReplays(t *testing.T) {
	a := newAPI(t)
	item := a.registerItem(t)

	body := map[string]any{"itemId": item.ID, "quantity": 3}
	first := a.do(t, http.MethodPost, "/api/v1/stock/out", body, middleware.HeaderIdempotencyKey, "k-2")
	require.Equal(t, http.StatusUnprocessableEntity, first.Code)

	// Stock arriving later does not change the stored answer for the key.
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/stock/in",
		map[string]any{"itemId": item.ID, "quantity": 10}).Code)

	second := a.do(t, http.MethodPost, "/api/v1/stock/out", body, middleware.HeaderIdempotencyKey, "k-2")
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

// conflictOnce fails the next unit with a concurrent modification once armed.
type conflictOnce struct {
	tx.Manager
	armed atomic.Bool
}

func (m *conflictOnce) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.armed.CompareAndSwap(true, false) {
		return apperror.NewConcurrentModification("transaction", 3)
	}
	return m.Manager.RunInTransaction(ctx, fn)
}

func TestIdempotentConflictIsRetried(t *testing.T) {
	store := memory.New()
	txm := &conflictOnce{Manager: store}
	svc := inventory.NewService(store, store, store, txm,
		inventory.WithNumberGenerator(store),
		inventory.WithClock(func() time.Time { return now }),
	)
	a := &api{
		router: v1.NewRouter(v1.RouterConfig{
			Service:     svc,
			Idempotency: memory.NewIdempotencyStore(),
			Clock:       func() time.Time { return now },
			Mode:        gin.TestMode,
		}),
		store: store,
		svc:   svc,
	}
	item := a.registerItem(t)
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/v1/stock/in",
		map[string]any{"itemId": item.ID, "quantity": 10}).Code)

	txm.armed.Store(true)
	body := map[string]any{"itemId": item.ID, "quantity": 4}
	first := a.do(t, http.MethodPost, "/api/v1/stock/out", body, middleware.HeaderIdempotencyKey, "k-3")
	require.Equal(t, http.StatusConflict, first.Code)
	assert.Equal(t, apperror.CodeConcurrentModification, decode[dto.ErrorResponse](t, first).Code)

	second := a.do(t, http.MethodPost, "/api/v1/stock/out", body, middleware.HeaderIdempotencyKey, "k-3")
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	assert.Empty(t, second.Header().Get("Idempotent-Replayed"))

	third := a.do(t, http.MethodPost, "/api/v1/stock/out", body, middleware.HeaderIdempotencyKey, "k-3")
	require.Equal(t, http.StatusCreated, third.Code)
	assert.Equal(t, "true", third.Header().Get("Idempotent-Replayed"))

	got, err := svc.GetItem(context.Background(), id.MustParse(item.ID))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(6), got.Quantity)
}

func TestListExpiringBatches(t *testing.T) {
	a := newAPI(t)
	item := a.registerItem(t)

	for _, expiry := range []string{"2025-03-12", "2025-05-01"} {
		w := a.do(t, http.MethodPost, "/api/v1/stock/in",
			map[string]any{"itemId": item.ID, "quantity": 1, "expiryDate": expiry})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := a.do(t, http.MethodGet, "/api/v1/batches/expiring?within=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	batches := decode[dto.ListResponse[dto.BatchResponse]](t, w).Items
	require.Len(t, batches, 1)
	assert.Equal(t, "2025-03-12", *batches[0].ExpiryDate)
}

func TestListItems(t *testing.T) {
	a := newAPI(t)
	a.registerItem(t)
	w := a.do(t, http.MethodPost, "/api/v1/items", map[string]any{"name": "Saffron", "unit": "g"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/items?search=saff", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[dto.ListResponse[dto.ItemResponse]](t, w).Items
	require.Len(t, items, 1)
	assert.Equal(t, "Saffron", items[0].Name)

	w = a.do(t, http.MethodGet, "/api/v1/incidents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.ListResponse[inventory.Incident]](t, w).Items)
}
