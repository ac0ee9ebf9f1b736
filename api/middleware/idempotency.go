package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/deliverydesk-backend/api/responses"
	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/deliverydesk-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

type replayPolicy struct {
	method   string
	path     string
	prefix   bool
	ttl      time.Duration
	required bool
}

func (p replayPolicy) covers(method, path string) bool {
	if p.method != method {
		return false
	}
	if p.prefix {
		return strings.HasPrefix(path, p.path)
	}
	return path == p.path
}

// Wallet checkout moves money, so it is the only route that insists on a key.
var replayPolicies = []replayPolicy{
	{method: http.MethodPost, path: "/wallet/pay-order", ttl: criticalIdempotencyTTL, required: true},
	{method: http.MethodPost, path: "/initialize-payment", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, path: "/create-virtual-account", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, path: "/admin/delivery-adjustments", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, path: "/admin/promotions", prefix: true, ttl: defaultIdempotencyTTL},
}

// matchRule finds the replay policy for a request path. Paths are matched
// literally since outer middleware runs before nested routers resolve.
func matchRule(method, path string) (replayPolicy, bool) {
	path = strings.TrimSuffix(strings.TrimSpace(path), "/")
	if path == "" {
		return replayPolicy{}, false
	}
	for _, p := range replayPolicies {
		if p.covers(method, path) {
			return p, true
		}
	}
	return replayPolicy{}, false
}

type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type replayGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

// Idempotency replays the stored response for a repeated Idempotency-Key and
// rejects a reused key whose body differs.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	g := &replayGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := matchRule(r.Method, r.URL.Path)
			if !ok || g.store == nil {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next, policy)
		})
	}
}

func (g *replayGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, policy replayPolicy) {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if clientKey == "" {
		if policy.required {
			responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, idempotencyHeader+" header required"))
			return
		}
		next.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	fingerprint := fingerprintBody(body)
	storeKey := g.store.IdempotencyKey(replayScope(r), clientKey)

	prior, err := g.lookup(ctx, storeKey)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}
	if prior != nil {
		if prior.Fingerprint != fingerprint {
			responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
			return
		}
		prior.writeTo(w)
		return
	}

	tee := &teeWriter{ResponseWriter: w}
	next.ServeHTTP(tee, r)

	status := tee.statusCode()
	if !replayable(status) {
		return
	}
	g.save(ctx, storeKey, policy.ttl, storedResponse{
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: tee.Header().Get("Content-Type"),
		Body:        tee.buf.Bytes(),
	})
}

// replayable reports whether a response is the outcome of the request itself.
// Server errors, auth rejections and throttling say nothing about the
// operation, so a retry with the same key runs it again.
func replayable(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return false
	}
	return status < http.StatusInternalServerError
}

func (g *replayGuard) lookup(ctx context.Context, key string) (*storedResponse, error) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &prior, nil
}

// save is best effort; a lost record only means the next retry re-executes.
func (g *replayGuard) save(ctx context.Context, key string, ttl time.Duration, resp storedResponse) {
	payload, err := json.Marshal(resp)
	if err == nil {
		_, err = g.store.SetNX(ctx, key, string(payload), ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(ctx, "persist idempotency record", err)
	}
}

func (s *storedResponse) writeTo(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

func replayScope(r *http.Request) string {
	return UserIDFromContext(r.Context()).String() + "|" + r.Method + "|" + r.URL.Path
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type teeWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (t *teeWriter) WriteHeader(code int) {
	if t.status == 0 {
		t.status = code
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *teeWriter) Write(b []byte) (int, error) {
	t.buf.Write(b)
	return t.ResponseWriter.Write(b)
}

func (t *teeWriter) statusCode() int {
	if t.status == 0 {
		return http.StatusOK
	}
	return t.status
}
