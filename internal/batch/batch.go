package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gothamgeo/geoclient/internal/geoclient"
	"github.com/gothamgeo/geoclient/internal/metrics"
	"github.com/gothamgeo/geoclient/internal/models"
	"golang.org/x/time/rate"
)

// Row processing outcome labels for metrics.
const (
	statusSuccess = "success"
	statusFailure = "failure"
	statusNoMatch = "no_match"
)

// minuteSeconds converts the configured per-minute rate ceiling to per-second.
const minuteSeconds = 60

// Lookuper performs a single lookup against the remote API.
type Lookuper interface {
	Lookup(ctx context.Context, endpoint geoclient.Endpoint, params url.Values) (geoclient.Record, error)
}

// Cache is an optional read-through store of earlier responses, keyed by
// endpoint and canonical query string. A nil Cache disables caching.
type Cache interface {
	GetRecord(ctx context.Context, endpoint geoclient.Endpoint, key string) (geoclient.Record, bool, error)
	PutRecord(ctx context.Context, endpoint geoclient.Endpoint, key string, rec geoclient.Record) error
}

// ConfigurationError aborts a whole batch before any network activity.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid batch configuration: " + e.Reason
}

// Request describes one batch invocation.
type Request struct {
	Rows     []models.Row      // non-empty ordered input rows
	KeyField string            // input column uniquely identifying each row
	Variant  geoclient.Variant // lookup flavor and its field mapping
	// ResponseFields selects the attributes projected from each response.
	// The variant's defaults apply when empty.
	ResponseFields []string
}

// Runner maps batches of tabular rows through the Geoclient API. Each row is
// processed independently: a failed row is recorded in its output row and
// never aborts the batch. The runner holds no state across invocations.
type Runner struct {
	log     *slog.Logger     // logger for logging batch activities
	lookup  Lookuper         // client performing single lookups
	cache   Cache            // optional response cache, may be nil
	metrics *metrics.Metrics // metrics for tracking batch performance
	limiter *rate.Limiter    // paces outbound requests below the API ceiling
	workers int              // number of concurrent workers, 1 means sequential
	timeout time.Duration    // per-request deadline, 0 means none
}

// NewRunner creates a batch runner. requestsPerMinute caps the outbound rate
// (Geoclient publishes a ceiling of 2,500 requests/minute); zero disables
// pacing. workers below 1 are treated as fully sequential processing.
func NewRunner(
	log *slog.Logger,
	lookup Lookuper,
	cache Cache,
	appMetrics *metrics.Metrics,
	workers int,
	requestsPerMinute float64,
	timeout time.Duration,
) *Runner {
	if workers < 1 {
		workers = 1
	}

	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(requestsPerMinute / minuteSeconds)
	}

	return &Runner{
		log:     log,
		lookup:  lookup,
		cache:   cache,
		metrics: appMetrics,
		limiter: rate.NewLimiter(limit, 1),
		workers: workers,
		timeout: timeout,
	}
}

// OutputColumns returns the column set every output row carries, in the order
// the result table should be written: key, projected fields, error indicator.
func OutputColumns(keyField string, responseFields []string) []string {
	columns := make([]string, 0, len(responseFields)+2)
	columns = append(columns, keyField)
	columns = append(columns, responseFields...)
	return append(columns, models.ErrorColumn)
}

// EffectiveFields resolves the projection set for a request: the caller's
// explicit selection, or the variant's defaults.
func (req Request) EffectiveFields() []string {
	if len(req.ResponseFields) > 0 {
		return req.ResponseFields
	}
	return req.Variant.DefaultFields
}

// Run processes every input row, strictly preserving input order in the
// result table. The returned table always has one row per input row and a
// uniform column set; the only whole-batch failure mode is a
// ConfigurationError raised before any network activity.
func (r *Runner) Run(ctx context.Context, req Request) (models.Table, error) {
	fields := req.EffectiveFields()
	if err := validate(req, fields); err != nil {
		return nil, err
	}

	r.log.InfoContext(ctx, "Starting batch",
		"endpoint", string(req.Variant.Endpoint),
		"rows", len(req.Rows),
		"workers", r.workers,
	)

	results := make(models.Table, len(req.Rows))

	if r.workers == 1 {
		for idx, row := range req.Rows {
			results[idx] = r.processRow(ctx, req, fields, row)
		}
		r.log.InfoContext(ctx, "Batch finished", "rows", len(results))
		return results, nil
	}

	jobs := make(chan job, len(req.Rows))
	var wgr sync.WaitGroup

	for i := 1; i <= r.workers; i++ {
		wgr.Add(1)
		go r.worker(ctx, i, &wgr, req, fields, jobs, results)
	}

	for idx, row := range req.Rows {
		jobs <- job{idx: idx, row: row}
	}
	close(jobs)

	wgr.Wait()
	r.log.InfoContext(ctx, "Batch finished", "rows", len(results))

	return results, nil
}

// job carries one input row together with its slot in the result table.
type job struct {
	idx int
	row models.Row
}

// worker drains the jobs channel. Every job owns a distinct result slot, so
// workers never write the same index and the merge needs no locking.
func (r *Runner) worker(
	ctx context.Context,
	idx int,
	wg *sync.WaitGroup,
	req Request,
	fields []string,
	jobs <-chan job,
	results models.Table,
) {
	defer wg.Done()
	for jb := range jobs {
		r.metrics.ActiveWorkers.Inc()
		r.log.DebugContext(ctx, "Processing row", "worker", idx, "row", jb.idx)
		results[jb.idx] = r.processRow(ctx, req, fields, jb.row)
		r.metrics.ActiveWorkers.Dec()
	}
}

// processRow carries one row through build -> request -> classify -> project.
// It always returns an output row; errors are recorded, never propagated.
func (r *Runner) processRow(ctx context.Context, req Request, fields []string, row models.Row) models.Row {
	key := row.Get(req.KeyField)

	params, err := req.Variant.BuildParams(row)
	if err != nil {
		r.log.WarnContext(ctx, "Skipping row with incomplete input", "key", key, "error", err)
		r.metrics.RowsProcessed.WithLabelValues(statusFailure).Inc()
		return errorRow(req.KeyField, key, fields, err)
	}

	rec, err := r.fetch(ctx, req.Variant.Endpoint, params)
	switch {
	case err == nil:
		r.metrics.RowsProcessed.WithLabelValues(statusSuccess).Inc()
		return projectRow(req.KeyField, key, fields, rec)
	case errors.Is(err, geoclient.ErrNoMatch):
		r.log.DebugContext(ctx, "No match for row", "key", key)
		r.metrics.RowsProcessed.WithLabelValues(statusNoMatch).Inc()
		return emptyRow(req.KeyField, key, fields)
	default:
		r.log.ErrorContext(ctx, "Failed to geocode row", "key", key, "error", err)
		r.metrics.RowsProcessed.WithLabelValues(statusFailure).Inc()
		r.metrics.APIErrors.Inc()
		return errorRow(req.KeyField, key, fields, err)
	}
}

// fetch performs one lookup, consulting the cache first and pacing the
// outbound request through the rate limiter. The per-request timeout is
// applied here so a slow call only costs its own row.
func (r *Runner) fetch(ctx context.Context, endpoint geoclient.Endpoint, params url.Values) (geoclient.Record, error) {
	cacheKey := params.Encode()

	if r.cache != nil {
		rec, found, err := r.cache.GetRecord(ctx, endpoint, cacheKey)
		if err != nil {
			r.log.WarnContext(ctx, "Cache lookup failed", "endpoint", string(endpoint), "error", err)
		} else if found {
			r.metrics.CacheHits.Inc()
			return rec, nil
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait interrupted: %w", err)
	}

	reqCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	rec, err := r.lookup.Lookup(reqCtx, endpoint, params)
	r.metrics.RequestSeconds.WithLabelValues(string(endpoint)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.PutRecord(ctx, endpoint, cacheKey, rec); err != nil {
			r.log.WarnContext(ctx, "Failed to store response in cache", "endpoint", string(endpoint), "error", err)
		}
	}

	return rec, nil
}

func validate(req Request, fields []string) error {
	if len(req.Rows) == 0 {
		return &ConfigurationError{Reason: "no input rows"}
	}
	if strings.TrimSpace(req.KeyField) == "" {
		return &ConfigurationError{Reason: "key field is not set"}
	}
	if len(req.Variant.Params) == 0 {
		return &ConfigurationError{Reason: "variant has no parameter mappings"}
	}
	for _, spec := range req.Variant.Params {
		if spec.Field == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("no input column bound to parameter %q", spec.Param)}
		}
	}
	if len(fields) == 0 {
		return &ConfigurationError{Reason: "no response fields requested"}
	}
	for idx, row := range req.Rows {
		if !row.Has(req.KeyField) {
			return &ConfigurationError{Reason: fmt.Sprintf("row %d has no value for key field %q", idx, req.KeyField)}
		}
	}
	return nil
}

// emptyRow builds an output row carrying the key and the full column set with
// every response field missing. All output rows share this shape.
func emptyRow(keyField, key string, fields []string) models.Row {
	row := make(models.Row, len(fields)+2)
	row[keyField] = key
	for _, field := range fields {
		row[field] = ""
	}
	row[models.ErrorColumn] = ""
	return row
}

func errorRow(keyField, key string, fields []string, err error) models.Row {
	row := emptyRow(keyField, key, fields)
	row[models.ErrorColumn] = err.Error()
	return row
}

func projectRow(keyField, key string, fields []string, rec geoclient.Record) models.Row {
	row := emptyRow(keyField, key, fields)
	for _, field := range fields {
		if value, ok := rec.Field(field); ok {
			row[field] = value
		}
	}
	return row
}
