package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molimor/molimor-backend/api/validators"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
)

const (
	placePath     = "/api/v1/orders"
	resendPath    = "/api/admin/v1/orders/500002/resend-invoice"
	resendPattern = "/api/admin/v1/orders/{orderId}/resend-invoice"
)

type memoryStore map[string]string

func (m memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key], _ = value.(string)
	return true, nil
}

func (m memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m[key], _ = value.(string)
	return nil
}

func (m memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func (memoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

// call sends one request through the middleware with chi's route pattern set.
type call struct {
	method, path, pattern, key, body string
}

func (c call) serve(mw func(http.Handler) http.Handler, h http.Handler) *httptest.ResponseRecorder {
	method := c.method
	if method == "" {
		method = http.MethodPost
	}
	req := httptest.NewRequest(method, c.path, strings.NewReader(c.body))
	if c.key != "" {
		req.Header.Set(idempotencyHeader, c.key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{c.pattern}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	rec := httptest.NewRecorder()
	mw(h).ServeHTTP(rec, req)
	return rec
}

func placeOrder(key, body string) call {
	return call{path: placePath, pattern: placePath, key: key, body: body}
}

func resendInvoice(key, body string) call {
	return call{path: resendPath, pattern: resendPattern, key: key, body: body}
}

func countingHandler(status int, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		method, pattern string
		want            time.Duration
		ok              bool
	}{
		{http.MethodPost, placePath, criticalIdempotencyTTL, true},
		{http.MethodPost, resendPath, defaultIdempotencyTTL, true},
		{http.MethodDelete, "/api/admin/v1/order-notifications", defaultIdempotencyTTL, true},
		{http.MethodGet, placePath, 0, false},
		{http.MethodPost, "/api/v1/orders/500002", 0, false},
	}
	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		assert.Equalf(t, tt.ok, ok, "%s %s", tt.method, tt.pattern)
		if ok {
			assert.Equalf(t, tt.want, ttl, "%s %s", tt.method, tt.pattern)
		}
	}
}

func TestIdempotencyRequiresKeyOnResend(t *testing.T) {
	var calls int
	rec := resendInvoice("", `{}`).serve(Idempotency(memoryStore{}, nil), countingHandler(http.StatusAccepted, &calls))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, calls)
}

func TestIdempotencyKeyIsOptionalOnPlaceOrder(t *testing.T) {
	store := memoryStore{}
	mw := Idempotency(store, nil)
	var calls int

	for range 2 {
		rec := placeOrder("", `{"fname":"Asha"}`).serve(mw, countingHandler(http.StatusCreated, &calls))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store)
}

func TestIdempotencyCapsBodyBeforeReserving(t *testing.T) {
	store := memoryStore{}
	var calls int
	oversized := `{"orderNote":"` + strings.Repeat("x", validators.MaxBodyBytes) + `"}`

	rec := placeOrder("k-big", oversized).serve(Idempotency(store, nil), countingHandler(http.StatusCreated, &calls))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "request body exceeds")
	assert.Zero(t, calls)
	assert.Empty(t, store, "no reservation for a rejected body")
}

func TestIdempotencyDoesNotCacheServerErrors(t *testing.T) {
	store := memoryStore{}
	var calls int
	placeOrder("k1", `{"fname":"Asha"}`).serve(Idempotency(store, nil), countingHandler(http.StatusInternalServerError, &calls))

	assert.Empty(t, store, "5xx must release the reservation")
}

func TestRoutePatternFallsBackToPathForWildcards(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, placePath, nil)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/v1/*"}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	assert.Equal(t, placePath, routePattern(req))
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(memoryStore{}, nil)
	var calls int
	handler := countingHandler(http.StatusAccepted, &calls)

	first := resendInvoice("abc", `{"foo":"bar"}`).serve(mw, handler)
	require.Equal(t, http.StatusAccepted, first.Code)

	replay := resendInvoice("abc", `{"foo":"bar"}`).serve(mw, handler)
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, strings.TrimSpace(replay.Body.String()))
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	mw := Idempotency(memoryStore{}, nil)
	duplicateCode := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// the duplicate arrives while the first request is still running
		if duplicateCode == 0 {
			duplicateCode = placeOrder("dup", `{"fname":"Asha"}`).serve(mw, http.NotFoundHandler()).Code
		}
		w.WriteHeader(http.StatusCreated)
	})

	rec := placeOrder("dup", `{"fname":"Asha"}`).serve(mw, handler)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusConflict, duplicateCode)
}

func TestIdempotencyReleasesKeyOnPanic(t *testing.T) {
	store := memoryStore{}
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	assert.Panics(t, func() {
		placeOrder("p1", `{}`).serve(Idempotency(store, nil), handler)
	})
	assert.Empty(t, store)
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	mw := Idempotency(memoryStore{}, nil)
	var calls int
	handler := countingHandler(http.StatusOK, &calls)

	resendInvoice("xyz", `{"foo":"bar"}`).serve(mw, handler)
	rec := resendInvoice("xyz", `{"foo":"diff"}`).serve(mw, handler)

	require.Equal(t, http.StatusConflict, rec.Code)
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
	assert.Equal(t, 1, calls)
}
