package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/betteranalytics/dashboard/config"
	"github.com/betteranalytics/dashboard/middleware"
	"github.com/betteranalytics/dashboard/models"
	"github.com/betteranalytics/dashboard/repository"
	"github.com/betteranalytics/dashboard/utils"
)

const (
	maxImportRows = 10000
	// Request body limits, enforced before anything is parsed
	maxValidateBytes = 64 << 10
	maxImportBytes   = 8 << 20
)

// PageViewController serves page view statistics for the dashboard.
type PageViewController struct {
	repo             repository.PageViewRepository
	defaultRangeDays int
	maxRangeDays     int
	maxRows          int
	maxValidateBytes int64
	maxImportBytes   int64
	now              func() time.Time
}

// NewPageViewController creates a PageViewController using the stats limits from cfg.
func NewPageViewController(repo repository.PageViewRepository, cfg config.AppConfig) *PageViewController {
	return &PageViewController{
		repo:             repo,
		defaultRangeDays: max(cfg.StatsDefaultRangeDays, 1),
		maxRangeDays:     max(cfg.StatsMaxRangeDays, 1),
		maxRows:          max(cfg.StatsMaxRows, 1),
		maxValidateBytes: maxValidateBytes,
		maxImportBytes:   maxImportBytes,
		now:              time.Now,
	}
}

type rangeParams struct {
	From  string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To    string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	URL   string `form:"url" binding:"omitempty,max=255"`
	Limit int    `form:"limit" binding:"omitempty,min=1"`
}

// RowIssues reports the issues of one element of an import payload.
type RowIssues struct {
	Index  int            `json:"index"`
	Schema string         `json:"schema"`
	Issues []models.Issue `json:"issues"`
}

// resolveRange applies defaults and limits. The returned string is a client-facing error.
func (p *PageViewController) resolveRange(params rangeParams) (repository.RangeQuery, string) {
	to := repository.Midnight(p.now())
	if params.To != "" {
		to, _ = time.ParseInLocation(repository.DateLayout, params.To, time.Local)
	}
	from := to.AddDate(0, 0, -(p.defaultRangeDays - 1))
	if params.From != "" {
		from, _ = time.ParseInLocation(repository.DateLayout, params.From, time.Local)
	}

	if from.After(to) {
		return repository.RangeQuery{}, "from must not be after to"
	}
	if to.Sub(from) >= time.Duration(p.maxRangeDays)*24*time.Hour {
		return repository.RangeQuery{}, "date range too long"
	}

	limit := params.Limit
	if limit == 0 {
		limit = p.maxRows
	}
	if limit > p.maxRows {
		return repository.RangeQuery{}, "limit too large"
	}
	return repository.RangeQuery{From: from, To: to, URL: params.URL, Limit: limit}, ""
}

func (p *PageViewController) bindRange(ctx *gin.Context) (repository.RangeQuery, bool) {
	var params rangeParams
	if err := ctx.ShouldBindQuery(&params); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid query parameters: "+err.Error())
		return repository.RangeQuery{}, false
	}
	q, msg := p.resolveRange(params)
	if msg != "" {
		utils.Error(ctx, http.StatusBadRequest, 40002, msg)
		return repository.RangeQuery{}, false
	}
	return q, true
}

// Daily returns per day and URL view counts.
func (p *PageViewController) Daily(ctx *gin.Context) {
	q, ok := p.bindRange(ctx)
	if !ok {
		return
	}
	rows, err := p.repo.Daily(ctx.Request.Context(), q)
	if err != nil {
		p.queryFailed(ctx, err)
		return
	}
	utils.Success(ctx, rows)
}

// Total returns the total view count in range.
func (p *PageViewController) Total(ctx *gin.Context) {
	q, ok := p.bindRange(ctx)
	if !ok {
		return
	}
	row, err := p.repo.Total(ctx.Request.Context(), q)
	if err != nil {
		p.queryFailed(ctx, err)
		return
	}
	utils.Success(ctx, row)
}

func (p *PageViewController) queryFailed(ctx *gin.Context, err error) {
	_ = ctx.Error(err)
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		utils.Logger.Error("page view query returned malformed rows", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50002, "page view data failed validation")
		return
	}
	utils.Logger.Error("page view query failed", zap.Error(err))
	utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to load page views")
}

// readBody reads at most limit bytes of the request body and answers 413 beyond that.
func readBody(ctx *gin.Context, limit int64) ([]byte, bool) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
	body, err := ctx.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, 41302, "request body too large")
			return nil, false
		}
		utils.Error(ctx, http.StatusBadRequest, 40003, "failed to read body")
		return nil, false
	}
	return body, true
}

// Schemas returns the record shapes as OpenAPI schema objects.
func (p *PageViewController) Schemas(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		models.DailyPageViewRowName:  models.DailyPageViewRowSchema(),
		models.PageviewsCountRowName: models.PageviewsCountRowSchema(),
	})
}

// Validate runs one of the row validators against the request body.
func (p *PageViewController) Validate(ctx *gin.Context) {
	body, ok := readBody(ctx, p.maxValidateBytes)
	if !ok {
		return
	}

	var (
		record any
		verr   error
	)
	switch ctx.Param("schema") {
	case "daily":
		record, verr = models.ValidateDailyPageViewRow(json.RawMessage(body))
	case "count":
		record, verr = models.ValidateCountRow(json.RawMessage(body))
	default:
		utils.Error(ctx, http.StatusNotFound, 40401, "unknown schema")
		return
	}

	var validationErr *models.ValidationError
	if errors.As(verr, &validationErr) {
		utils.Fail(ctx, http.StatusUnprocessableEntity, 42201, validationErr.Error(), validationErr)
		return
	}
	utils.Success(ctx, record)
}

// Import stores externally computed daily rows. The whole payload is rejected
// when any element fails validation.
func (p *PageViewController) Import(ctx *gin.Context) {
	body, ok := readBody(ctx, p.maxImportBytes)
	if !ok {
		return
	}
	var items []json.RawMessage
	if err := jsoniter.Unmarshal(body, &items); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, "body must be a JSON array")
		return
	}
	if len(items) > maxImportRows {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "too many rows")
		return
	}

	rows := make([]models.ImportRow, 0, len(items))
	var rejected []RowIssues
	for i, item := range items {
		row, err := models.ValidateDailyPageViewRow(item)
		if err == nil {
			importRow := models.NewImportRow(row)
			if err = importRow.Validate(); err == nil {
				rows = append(rows, importRow)
				continue
			}
		}
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
			return
		}
		utils.Metrics.ValidationFailures.WithLabelValues(verr.Schema).Inc()
		rejected = append(rejected, RowIssues{Index: i, Schema: verr.Schema, Issues: verr.Issues})
	}
	if len(rejected) > 0 {
		utils.Fail(ctx, http.StatusUnprocessableEntity, 42202, "import rejected", rejected)
		return
	}

	n, err := p.repo.Import(ctx.Request.Context(), rows)
	if err != nil {
		_ = ctx.Error(err)
		utils.Logger.Error("page view import failed", zap.Error(err), zap.String("subject", ctx.GetString(middleware.ContextSubjectKey)))
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to import page views")
		return
	}
	utils.Metrics.RowsImported.Add(float64(n))
	utils.Success(ctx, gin.H{"imported": n})
}
