package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/molimor/molimor-backend/api/responses"
	"github.com/molimor/molimor-backend/api/validators"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
	"github.com/molimor/molimor-backend/pkg/logger"
	pkgredis "github.com/molimor/molimor-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// reservationTTL caps how long a crashed request can block its key.
	reservationTTL = 2 * time.Minute
)

type routeMatcher func(string) bool

type idempotencyRule struct {
	method  string
	matcher routeMatcher
	ttl     time.Duration
	// required rejects requests without a key; otherwise they pass through unrecorded.
	required bool
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, matcher: matchExact("/api/v1/orders"), ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, matcher: matchPrefixSuffix("/api/admin/v1/orders/", "/resend-invoice"), ttl: defaultIdempotencyTTL, required: true},
	{method: http.MethodDelete, matcher: matchExact("/api/admin/v1/order-notifications"), ttl: defaultIdempotencyTTL},
}

const (
	stateInFlight = "in_flight"
	stateDone     = "done"
)

// idempotencyRecord is what Redis holds per key: a reservation while the
// first request runs, then the response to replay.
type idempotencyRecord struct {
	State       string            `json:"state"`
	RequestHash string            `json:"request_hash"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// the routes listed in idempotencyRules. The key is reserved before the
// handler runs so a concurrent duplicate gets a conflict instead of a second
// order. 5xx responses release the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				if rule.required {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, readBodyError(err))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			g := &guard{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(buildScope(r), clientKey),
				hash:  hashBody(body),
			}

			reserved, err := g.reserve(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !reserved {
				if err := g.replay(r.Context(), w); err != nil {
					responses.WriteError(r.Context(), logg, w, err)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			finished := false
			defer func() {
				// a panicking handler must not leave the key reserved
				if !finished {
					g.release(r.Context())
				}
			}()
			next.ServeHTTP(capture, r)
			finished = true

			g.complete(r.Context(), capture, rule.ttl)
		})
	}
}

type guard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
	key   string
	hash  string
}

func (g *guard) reserve(ctx context.Context) (bool, error) {
	payload, err := json.Marshal(idempotencyRecord{State: stateInFlight, RequestHash: g.hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation")
	}
	ok, err := g.store.SetNX(ctx, g.key, string(payload), reservationTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return ok, nil
}

func (g *guard) replay(ctx context.Context, w http.ResponseWriter) error {
	stored, err := g.store.Get(ctx, g.key)
	if errors.Is(err, redis.Nil) {
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if record.RequestHash != g.hash {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	if record.State != stateDone {
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress")
	}

	if ct := record.Headers["Content-Type"]; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
	return nil
}

// complete stores the response for replay, or frees the key after a server
// error. It runs even if the client has gone away.
func (g *guard) complete(ctx context.Context, capture *responseCapture, ttl time.Duration) {
	status := capture.statusOrOK()
	if status >= http.StatusInternalServerError {
		g.release(ctx)
		return
	}

	record := idempotencyRecord{
		State:       stateDone,
		RequestHash: g.hash,
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
	}
	if ct := capture.Header().Get("Content-Type"); ct != "" {
		record.Headers = map[string]string{"Content-Type": ct}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		logError(ctx, g.logg, "marshal idempotency record", err)
		g.release(ctx)
		return
	}
	if err := g.store.Set(context.WithoutCancel(ctx), g.key, string(payload), ttl); err != nil {
		logError(ctx, g.logg, "persist idempotency record", err)
	}
}

func (g *guard) release(ctx context.Context) {
	if err := g.store.Del(context.WithoutCancel(ctx), g.key); err != nil {
		logError(ctx, g.logg, "release idempotency key", err)
	}
}

// buildScope keeps keys from different users and routes apart.
func buildScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func readBodyError(err error) *pkgerrors.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "request body exceeds %d bytes", tooLarge.Limit)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// routePattern prefers the matched chi pattern. Group middleware runs before the
// subrouter resolves, so a wildcard pattern falls back to the request path.
func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return strings.TrimSuffix(pattern, "/")
		}
	}
	if r.URL == nil {
		return ""
	}
	return strings.TrimSuffix(r.URL.Path, "/")
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	rule, ok := matchRule(method, pattern)
	return rule.ttl, ok
}

func matchRule(method, pattern string) (idempotencyRule, bool) {
	if pattern == "" {
		return idempotencyRule{}, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && rule.matcher(pattern) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

func matchExact(path string) routeMatcher {
	return func(pattern string) bool { return pattern == path }
}

func matchPrefixSuffix(prefix, suffix string) routeMatcher {
	return func(pattern string) bool {
		return strings.HasPrefix(pattern, prefix) && strings.HasSuffix(pattern, suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
