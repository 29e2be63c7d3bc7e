package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betteranalytics/dashboard/config"
	"github.com/betteranalytics/dashboard/models"
	"github.com/betteranalytics/dashboard/repository"
)

type stubRepository struct {
	daily    []models.DailyPageViewRow
	total    models.PageviewsCountRow
	err      error
	lastQ    repository.RangeQuery
	imported []models.ImportRow
}

func (s *stubRepository) Daily(_ context.Context, q repository.RangeQuery) ([]models.DailyPageViewRow, error) {
	s.lastQ = q
	return s.daily, s.err
}

func (s *stubRepository) Total(_ context.Context, q repository.RangeQuery) (models.PageviewsCountRow, error) {
	s.lastQ = q
	return s.total, s.err
}

func (s *stubRepository) Record(context.Context, time.Time, string, int64) error { return s.err }

func (s *stubRepository) Import(_ context.Context, rows []models.ImportRow) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.imported = append(s.imported, rows...)
	return len(rows), nil
}

func (s *stubRepository) Prune(context.Context, time.Time) (int64, error) { return 0, s.err }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEngine(repo repository.PageViewRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.AppConfig{StatsDefaultRangeDays: 30, StatsMaxRangeDays: 90, StatsMaxRows: 50}
	c := NewPageViewController(repo, cfg)
	c.now = func() time.Time { return time.Date(2024, 1, 31, 14, 0, 0, 0, time.Local) }

	r := gin.New()
	r.GET("/daily", c.Daily)
	r.GET("/total", c.Total)
	r.GET("/schemas", c.Schemas)
	r.POST("/validate/:schema", c.Validate)
	r.POST("/import", c.Import)
	return r
}

func do(t *testing.T, r http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestDailyDefaultRange(t *testing.T) {
	repo := &stubRepository{daily: []models.DailyPageViewRow{{Date: "2024-01-30", URL: "/home", Views: 42}}}
	w, env := do(t, newTestEngine(repo), http.MethodGet, "/daily", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
	assert.JSONEq(t, `[{"date":"2024-01-30","url":"/home","views":42}]`, string(env.Data))

	assert.Equal(t, "2024-01-02", repo.lastQ.From.Format(repository.DateLayout))
	assert.Equal(t, "2024-01-31", repo.lastQ.To.Format(repository.DateLayout))
	assert.Equal(t, 50, repo.lastQ.Limit)
}

func TestDailyExplicitRange(t *testing.T) {
	repo := &stubRepository{daily: []models.DailyPageViewRow{}}
	w, env := do(t, newTestEngine(repo), http.MethodGet, "/daily?from=2023-12-01&to=2023-12-31&url=/pricing&limit=10", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.Equal(t, "2023-12-01", repo.lastQ.From.Format(repository.DateLayout))
	assert.Equal(t, "/pricing", repo.lastQ.URL)
	assert.Equal(t, 10, repo.lastQ.Limit)
}

func TestDailyRejectsBadParameters(t *testing.T) {
	cases := map[string]struct {
		query string
		code  int
	}{
		"bad date":       {"from=2024-13-01", 40001},
		"zero limit":     {"limit=-1", 40001},
		"reversed range": {"from=2024-02-01&to=2024-01-01", 40002},
		"range too long": {"from=2023-01-01&to=2024-01-01", 40002},
		"limit too big":  {"limit=51", 40002},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w, env := do(t, newTestEngine(&stubRepository{}), http.MethodGet, "/daily?"+tc.query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.code, env.Code)
		})
	}
}

func TestQueryValidationFailure(t *testing.T) {
	repo := &stubRepository{err: &models.ValidationError{
		Schema: models.PageviewsCountRowName,
		Issues: []models.Issue{{Field: "total", Expected: "number", Received: "string"}},
	}}
	w, env := do(t, newTestEngine(repo), http.MethodGet, "/total", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 50002, env.Code)
}

func TestQueryStorageFailure(t *testing.T) {
	w, env := do(t, newTestEngine(&stubRepository{err: errors.New("connection refused")}), http.MethodGet, "/daily", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 50001, env.Code)
}

func TestTotal(t *testing.T) {
	repo := &stubRepository{total: models.PageviewsCountRow{Total: 100}}
	w, env := do(t, newTestEngine(repo), http.MethodGet, "/total?from=2024-01-01&to=2024-01-07", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":100}`, string(env.Data))
}

func TestSchemas(t *testing.T) {
	w, env := do(t, newTestEngine(&stubRepository{}), http.MethodGet, "/schemas", "")

	require.Equal(t, http.StatusOK, w.Code)
	var schemas map[string]struct {
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &schemas))
	assert.ElementsMatch(t, []string{"date", "url", "views"}, schemas[models.DailyPageViewRowName].Required)
	assert.Contains(t, schemas[models.PageviewsCountRowName].Properties, "total")
}

func TestValidateEndpoint(t *testing.T) {
	r := newTestEngine(&stubRepository{})

	w, env := do(t, r, http.MethodPost, "/validate/daily", `{"date":"2024-01-01","url":"/home","views":42,"extra":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"date":"2024-01-01","url":"/home","views":42}`, string(env.Data))

	w, env = do(t, r, http.MethodPost, "/validate/daily", `{"date":"2024-01-01","url":"/home","views":"42"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 42201, env.Code)
	var verr models.ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &verr))
	assert.Equal(t, []string{"views"}, verr.Fields())
	assert.Equal(t, "string", verr.Issues[0].Received)

	w, env = do(t, r, http.MethodPost, "/validate/count", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &verr))
	assert.Equal(t, "undefined", verr.Issues[0].Received)

	w, env = do(t, r, http.MethodPost, "/validate/count", `{"total":100}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":100}`, string(env.Data))

	w, _ = do(t, r, http.MethodPost, "/validate/weekly", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportAllOrNothing(t *testing.T) {
	repo := &stubRepository{}
	body := `[
		{"date":"2024-01-01","url":"/home","views":42},
		{"date":"2024-01-01","url":"/home"},
		{"date":"yesterday","url":"/about","views":-1.5},
		"not an object"
	]`
	w, env := do(t, newTestEngine(repo), http.MethodPost, "/import", body)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 42202, env.Code)
	assert.Empty(t, repo.imported)

	var rejected []RowIssues
	require.NoError(t, json.Unmarshal(env.Data, &rejected))
	require.Len(t, rejected, 3)
	assert.Equal(t, 1, rejected[0].Index)
	assert.Equal(t, models.DailyPageViewRowName, rejected[0].Schema)
	assert.Equal(t, "views", rejected[0].Issues[0].Field)
	assert.Equal(t, 2, rejected[1].Index)
	assert.Equal(t, models.ImportRowName, rejected[1].Schema)
	assert.Len(t, rejected[1].Issues, 2)
	assert.Equal(t, 3, rejected[2].Index)
	assert.Equal(t, "", rejected[2].Issues[0].Field)
}

func TestImportWritesRows(t *testing.T) {
	repo := &stubRepository{}
	body := `[{"date":"2024-01-01","url":"/home","views":42,"source":"backfill"},{"date":"2024-01-02","url":"/home","views":0}]`
	w, env := do(t, newTestEngine(repo), http.MethodPost, "/import", body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"imported":2}`, string(env.Data))
	assert.Equal(t, []models.ImportRow{
		{Date: "2024-01-01", URL: "/home", Views: 42},
		{Date: "2024-01-02", URL: "/home", Views: 0},
	}, repo.imported)
}

func TestImportRejectsNonArray(t *testing.T) {
	w, env := do(t, newTestEngine(&stubRepository{}), http.MethodPost, "/import", `{"date":"2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40004, env.Code)
}

func TestBodyLimits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubRepository{}
	c := NewPageViewController(repo, config.AppConfig{})
	c.maxImportBytes = 64

	r := gin.New()
	r.POST("/validate/:schema", c.Validate)
	r.POST("/import", c.Import)

	big := `[` + strings.Repeat(`{"date":"2024-01-01","url":"/home","views":1},`, 3) + `{"date":"2024-01-01","url":"/home","views":1}]`
	w, env := do(t, r, http.MethodPost, "/import", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 41302, env.Code)
	assert.Empty(t, repo.imported)

	w, _ = do(t, r, http.MethodPost, "/import", `[]`)
	assert.Equal(t, http.StatusOK, w.Code)

	huge := `{"date":"2024-01-01","url":"` + strings.Repeat("a", maxValidateBytes) + `","views":1}`
	w, env = do(t, r, http.MethodPost, "/validate/daily", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 41302, env.Code)
}
