package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/orbit-hq/orbit/internal/store"
)

func briefingRow(id, userID string, readAt interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "content", "summary", "priorities", "alerts", "raw_data", "generated_at", "read_at"}).
		AddRow(id, userID, []byte(`{"summary":"hi"}`), "hi", []byte(`["A"]`), []byte(`[]`), []byte(`{}`), time.Now(), readAt)
}

func newBriefingsHandler(t *testing.T) (*BriefingsHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	h := &BriefingsHandler{Store: &store.Store{DB: db}}
	return h, mock, func() { db.Close() }
}

func TestListBriefingsClampsLimit(t *testing.T) {
	e := echo.New()
	h, mock, done := newBriefingsHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM briefings WHERE user_id=\$1 ORDER BY generated_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("u-1", 50, 0).
		WillReturnRows(briefingRow("7a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d", "u-1", nil))

	req := httptest.NewRequest(http.MethodGet, "/api/briefings?limit=500", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "u-1")

	if err := h.list(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	var resp []BriefingSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "7a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLatestBriefingNoContent(t *testing.T) {
	e := echo.New()
	h, mock, done := newBriefingsHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM briefings WHERE user_id=\$1 ORDER BY generated_at DESC LIMIT 1`).
		WithArgs("u-1").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/briefings/latest", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "u-1")

	if err := h.latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLatestBriefingMarksRead(t *testing.T) {
	e := echo.New()
	h, mock, done := newBriefingsHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM briefings WHERE user_id=\$1 ORDER BY generated_at DESC LIMIT 1`).
		WithArgs("u-1").
		WillReturnRows(briefingRow("7a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d", "u-1", nil))
	mock.ExpectQuery(`UPDATE briefings SET read_at = COALESCE\(read_at, now\(\)\)`).
		WithArgs("7a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d", "u-1").
		WillReturnRows(briefingRow("7a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d", "u-1", time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/briefings/latest", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "u-1")

	if err := h.latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	var resp BriefingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ReadAt == nil {
		t.Fatal("latest briefing not marked read")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetBriefingCrossUserNotFound(t *testing.T) {
	e := echo.New()
	h, mock, done := newBriefingsHandler(t)
	defer done()

	// the query is scoped by user_id, so a foreign briefing reads as absent
	mock.ExpectQuery(`SELECT .+ FROM briefings WHERE id=\$1 AND user_id=\$2`).
		WithArgs("3e4f5a6b-7c8d-4e9f-a0b1-c2d3e4f5a6b7", "u-1").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/briefings/b-other", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "u-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("3e4f5a6b-7c8d-4e9f-a0b1-c2d3e4f5a6b7")

	err := h.get(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	e := echo.New()
	h, mock, done := newBriefingsHandler(t)
	defer done()

	firstRead := time.Now().Add(-time.Hour)
	mock.ExpectQuery(`UPDATE briefings SET read_at = COALESCE\(read_at, now\(\)\)`).
		WithArgs("7a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d", "u-1").
		WillReturnRows(briefingRow("7a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d", "u-1", firstRead))

	req := httptest.NewRequest(http.MethodPost, "/api/briefings/b-1/read", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "u-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("7a1b2c3d-4e5f-4a6b-8c9d-0e1f2a3b4c5d")

	if err := h.markRead(ctx); err != nil {
		t.Fatalf("markRead: %v", err)
	}
	var resp BriefingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ReadAt == nil || !resp.ReadAt.Equal(firstRead) {
		t.Fatalf("read_at = %v, want original %v", resp.ReadAt, firstRead)
	}
}
