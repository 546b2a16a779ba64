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

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotentReplayedHeader  = "Idempotent-Replayed"
	defaultIdempotencyTTL     = 24 * time.Hour
	criticalIdempotencyTTL    = 7 * 24 * time.Hour
	pendingIdempotencyTTL     = 2 * time.Minute
	maxIdempotentBodyBytes    = 1 << 20
	idempotencyStatePending   = "pending"
	idempotencyStateCompleted = "completed"
)

type idempotencyRule struct {
	method   string
	segments []string
	ttl      time.Duration
	optional bool
}

// rule builds a route rule from a path where "*" matches one segment.
func rule(method, path string, ttl time.Duration) idempotencyRule {
	return idempotencyRule{method: method, segments: splitPath(path), ttl: ttl}
}

var idempotencyRules = []idempotencyRule{
	rule(http.MethodPost, "/api/admin/v1/batches", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/admin/v1/batches/*/status", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/admin/v1/orders/*/confirm", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/admin/v1/orders/*/status", defaultIdempotencyTTL),
	rule(http.MethodPost, "/api/v1/checkout", criticalIdempotencyTTL),
	rule(http.MethodPost, "/api/v1/orders/*/cancel", criticalIdempotencyTTL),
	// reporting a payment twice is already a no-op, the key only saves the work
	{method: http.MethodPost, segments: splitPath("/api/payments/result"), ttl: criticalIdempotencyTTL, optional: true},
}

type idempotencyRecord struct {
	State       string            `json:"state"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// the mutating routes listed in idempotencyRules. The key is reserved before
// the handler runs, so a concurrent duplicate is rejected rather than
// executed twice. 5xx outcomes release the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rule, ok := matchRule(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				if rule.optional {
					next.ServeHTTP(w, r)
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required").
					WithDetails(map[string]any{"header": IdempotencyKeyHeader}))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			pending, err := json.Marshal(idempotencyRecord{State: idempotencyStatePending, RequestHash: requestHash})
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency record"))
				return
			}
			reserved, err := store.SetNX(ctx, key, string(pending), pendingIdempotencyTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayExisting(ctx, store, logg, w, key, requestHash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			kept := false
			defer func() {
				if kept {
					return
				}
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
			}()

			next.ServeHTTP(rec, r)

			status := defaultStatus(rec.status)
			if status >= http.StatusInternalServerError {
				return
			}
			record := idempotencyRecord{
				State:       idempotencyStateCompleted,
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}
			payload, err := json.Marshal(record)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "encode idempotency record", err)
				}
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), key, string(payload), rule.ttl); err != nil {
				if logg != nil {
					logg.Error(ctx, "persist idempotency record", err)
				}
				return
			}
			kept = true
		})
	}
}

func replayExisting(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, requestHash string) {
	stored, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// released between SetNX and Get; the earlier attempt failed
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "previous request with this idempotency key failed, retry").
			WithDetails(map[string]any{"reason": "released"}))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if record.State != idempotencyStateCompleted {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress").
			WithDetails(map[string]any{"reason": "in_progress"}))
		return
	}

	if ct := record.Headers["Content-Type"]; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set(IdempotentReplayedHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

// idempotencyScope keeps keys from colliding across callers and routes.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func matchRule(method, path string) (idempotencyRule, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return idempotencyRule{}, false
	}
	for _, candidate := range idempotencyRules {
		if candidate.method == method && candidate.matches(segments) {
			return candidate, true
		}
	}
	return idempotencyRule{}, false
}

func (r idempotencyRule) matches(segments []string) bool {
	if len(segments) != len(r.segments) {
		return false
	}
	for i, want := range r.segments {
		if want != "*" && want != segments[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
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
