package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/orbit-hq/orbit/internal/store"
)

func TestUpdateUserRejectsBadBriefingTime(t *testing.T) {
	e := echo.New()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &UsersHandler{Store: &store.Store{DB: db}}

	req := httptest.NewRequest(http.MethodPatch, "/api/users/me", strings.NewReader(`{"briefing_time":"25:99"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "u-1")

	uerr := h.update(ctx)
	he, ok := uerr.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", uerr)
	}
}

func TestUpdateUserPartialFields(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &UsersHandler{Store: &store.Store{DB: db}}

	tz := "Europe/Berlin"
	mock.ExpectQuery(`UPDATE users SET`).
		WithArgs("u-1", nil, &tz, nil).
		WillReturnRows(userRow("u-1", "ada@example.com", "hash"))

	req := httptest.NewRequest(http.MethodPatch, "/api/users/me", strings.NewReader(`{"timezone":"Europe/Berlin"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "u-1")

	if err := h.update(ctx); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp UserResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "u-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDeactivateUser(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	h := &UsersHandler{Store: &store.Store{DB: db}}

	mock.ExpectExec(`UPDATE users SET is_active=FALSE`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "u-1")

	if err := h.deactivate(ctx); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}
