package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
)

func TestWriteErrorMapsServiceErrorWireCode(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, apierrors.NotFound("incident", "inc-1"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Code != string(apierrors.WireHTTP) {
		t.Errorf("expected wire code %s, got %s", apierrors.WireHTTP, body.Error.Code)
	}
}

func TestWriteErrorDefaultsPlainErrorToInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, errors.New("boom"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a non-ServiceError, got %d", rr.Code)
	}
}

func TestWriteBadRequestIsPlainHTTPError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeBadRequest(rr, "bad stuff")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error.Code != string(apierrors.WireHTTP) || body.Error.Message != "bad stuff" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}
