package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var body ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return body
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"order_code": "ORD-ABCDEFGH"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 but got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["order_code"] != "ORD-ABCDEFGH" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorKeepsConflictDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
		WithDetails(map[string]any{"product_id": "p-1", "requested": 7, "available": 6})
	WriteError(context.Background(), nil, w, err)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 but got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeConflict) || body.Error.Message != "insufficient stock" {
		t.Fatalf("unexpected error body %+v", body.Error)
	}
	if body.Error.Details.(map[string]any)["product_id"] != "p-1" {
		t.Fatalf("expected details in public payload, got %v", body.Error.Details)
	}
}

func TestWriteErrorHidesNotFoundDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithDetails(map[string]any{"owner": "someone"})
	WriteError(context.Background(), nil, w, err)

	body := decodeError(t, w)
	if w.Code != http.StatusNotFound || body.Error.Details != nil {
		t.Fatalf("expected 404 without details, got %d %+v", w.Code, body.Error)
	}
}

func TestWriteErrorDefaultsToInternalForUntypedErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	w := httptest.NewRecorder()
	WriteError(context.Background(), logg, w, errors.New("pq: connection reset"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 but got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeInternal) || strings.Contains(body.Error.Message, "pq") {
		t.Fatalf("internal error leaked: %+v", body.Error)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), "connection reset") {
		t.Fatalf("expected error log with cause, got %s", buf.String())
	}
}

func TestWriteErrorLogsClientErrorsAtWarn(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive"))

	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), "request.rejected") {
		t.Fatalf("expected warn entry, got %s", buf.String())
	}
}

func TestWriteErrorSetsRetryAfterOnDependencyFailure(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "redis unavailable"))

	if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 503 with Retry-After, got %d %q", w.Code, w.Header().Get("Retry-After"))
	}
	if msg := decodeError(t, w).Error.Message; msg != "dependency unavailable" {
		t.Fatalf("expected public message, got %q", msg)
	}
}
