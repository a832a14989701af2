package apperror

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func invokeHandler(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	HTTPErrorHandler(slog.Default())(err, c)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("response missing error object: %s", rec.Body.String())
	}
	return rec, errObj
}

func TestHTTPErrorHandlerAppError(t *testing.T) {
	rec, errObj := invokeHandler(t, NewBadRequest("page must be >= 1"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if errObj["code"] != "bad_request" {
		t.Errorf("code = %v, want bad_request", errObj["code"])
	}
	if errObj["message"] != "page must be >= 1" {
		t.Errorf("message = %v", errObj["message"])
	}
}

func TestHTTPErrorHandlerEchoError(t *testing.T) {
	rec, errObj := invokeHandler(t, echo.NewHTTPError(http.StatusNotFound, "route not found"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if errObj["code"] != "not_found" {
		t.Errorf("code = %v, want not_found", errObj["code"])
	}
}

func TestHTTPErrorHandlerUnknownError(t *testing.T) {
	rec, errObj := invokeHandler(t, errors.New("kaboom"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if errObj["code"] != "internal_error" {
		t.Errorf("code = %v, want internal_error", errObj["code"])
	}
}

func TestHTTPErrorHandlerDetails(t *testing.T) {
	appErr := ErrValidation.WithDetails(map[string]any{"size": "must be <= 100"})
	rec, errObj := invokeHandler(t, appErr)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	details, ok := errObj["details"].(map[string]any)
	if !ok {
		t.Fatalf("details missing from response")
	}
	if details["size"] != "must be <= 100" {
		t.Errorf("details = %v", details)
	}
}
