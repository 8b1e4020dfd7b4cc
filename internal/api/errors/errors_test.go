package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, "Медиафайл не найден")

	if rec.Code != http.StatusNotFound {
		t.Errorf("ожидался статус 404, получен %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: %q", ct)
	}

	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}
	if body.Error.Code != CodeNotFound || body.Error.Message != "Медиафайл не найден" {
		t.Errorf("неверное тело ошибки: %+v", body)
	}
}

func TestInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, "сбой")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ожидался статус 500, получен %d", rec.Code)
	}
}
