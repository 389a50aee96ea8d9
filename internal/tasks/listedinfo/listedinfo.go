// Package listedinfo implements spec §4.8's canonical task: fetch listed
// company info for a resolved date range and bulk-upsert it into the
// data store. Grounded on internal/cron/retry.go's backoff-on-transient-
// failure posture (now internal/retry) and on the teacher's general HTTP
// client conventions; S3 archival and rate limiting are this spec's own
// additions (see SPEC_FULL.md's Task Implementations entry).
package listedinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/ratelimit"
	"github.com/ueebee/stockura-scheduler/internal/retry"
	"github.com/ueebee/stockura-scheduler/internal/store"
	"github.com/ueebee/stockura-scheduler/internal/tokencache"
)

// TaskName is the registry key this task registers under.
const TaskName = "fetch_listed_info"

// RateLimitBucket names the rate-limit bucket this task draws from.
const RateLimitBucket = "jquants"

// authError marks a failure as non-retryable per spec §4.8 step 5.
type authError struct{ status int }

func (e *authError) Error() string {
	return fmt.Sprintf("listedinfo: authentication error (status %d)", e.status)
}

// Archiver persists a date's fetched records, in the API's response shape,
// for debugging/replay. A nil
// Archiver is valid; archival failures never fail the task.
type Archiver interface {
	Archive(ctx context.Context, date, market string, raw []byte) error
}

// Task bundles the collaborators spec §4.8 names: an authenticated HTTP
// client via the Token Cache, a rate limiter, the target data store, and
// an optional archiver for each date's fetched records.
type Task struct {
	httpClient *http.Client
	baseURL    string
	tokenKey   string
	tokens     *tokencache.Cache
	limiter    *ratelimit.Limiter
	store      store.ListedInfoStore
	archiver   Archiver
	retryCfg   retry.Config
}

func New(httpClient *http.Client, baseURL, tokenKey string, tokens *tokencache.Cache, limiter *ratelimit.Limiter, listedStore store.ListedInfoStore, archiver Archiver) *Task {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Task{
		httpClient: httpClient,
		baseURL:    baseURL,
		tokenKey:   tokenKey,
		tokens:     tokens,
		limiter:    limiter,
		store:      listedStore,
		archiver:   archiver,
		retryCfg:   retry.DefaultConfig(),
	}
}

// kwargs is the parsed shape of the task's kwargs JSON, per spec §4.8
// step 1.
type kwargs struct {
	PeriodType string   `json:"period_type"`
	FromDate   string   `json:"from_date"`
	ToDate     string   `json:"to_date"`
	Codes      []string `json:"codes"`
	Market     string   `json:"market"`
}

type taskResult struct {
	Fetched int `json:"fetched"`
	Saved   int `json:"saved"`
}

// Run implements tasks.TaskFn.
func (t *Task) Run(ctx context.Context, _ json.RawMessage, kwargsRaw json.RawMessage) (json.RawMessage, error) {
	kw, err := parseKwargs(kwargsRaw)
	if err != nil {
		return nil, err
	}

	from, to, err := resolveDateRange(kw, time.Now())
	if err != nil {
		return nil, err
	}

	var allRecords []model.ListedInfo
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		records, raw, err := t.fetchDate(ctx, date, kw)
		if err != nil {
			return nil, fmt.Errorf("listedinfo: fetch %s: %w", date, err)
		}
		allRecords = append(allRecords, records...)

		if t.archiver != nil {
			market := kw.Market
			if market == "" {
				market = "all"
			}
			if err := t.archiver.Archive(ctx, date, market, raw); err != nil {
				// Archival is best-effort: the upsert is the task's real
				// contract, per SPEC_FULL.md's Task Implementations entry.
				slog.Warn("listedinfo: archive failed", "date", date, "error", err)
			}
		}
	}

	saved, err := t.store.BulkUpsert(ctx, allRecords)
	if err != nil {
		return nil, fmt.Errorf("listedinfo: bulk upsert: %w", err)
	}

	result := taskResult{Fetched: len(allRecords), Saved: saved}
	return json.Marshal(result)
}

// fetchDate issues one request per code in kw.Codes (or a single
// unfiltered request when no codes are given), applies kw.Market as a
// client-side filter, and rebuilds an archival payload reflecting
// exactly the records that survived filtering for the date.
func (t *Task) fetchDate(ctx context.Context, date string, kw kwargs) ([]model.ListedInfo, []byte, error) {
	codes := kw.Codes
	if len(codes) == 0 {
		codes = []string{""}
	}

	var records []model.ListedInfo
	for _, code := range codes {
		if t.limiter != nil {
			if err := t.limiter.Acquire(ctx, RateLimitBucket); err != nil {
				return nil, nil, fmt.Errorf("rate limit: %w", err)
			}
		}

		raw, permanentErr, err := retryableGet(ctx, t.retryCfg, func(ctx context.Context) ([]byte, error) {
			return t.doGet(ctx, date, code)
		})
		if permanentErr != nil {
			return nil, nil, permanentErr
		}
		if err != nil {
			return nil, nil, err
		}

		perCode, err := parseResponse(date, raw, kw.Market)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, perCode...)
	}

	archived, err := json.Marshal(apiResponse{Info: toAPIRecords(records)})
	if err != nil {
		return nil, nil, fmt.Errorf("listedinfo: marshal archive payload for %s: %w", date, err)
	}
	return records, archived, nil
}

func (t *Task) doGet(ctx context.Context, date, code string) ([]byte, error) {
	url := fmt.Sprintf("%s/listed/info?date=%s", t.baseURL, date)
	if code != "" {
		url += "&code=" + code
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	if t.tokens != nil {
		token, err := t.tokens.GetIDToken(ctx, t.tokenKey)
		if err != nil {
			return nil, fmt.Errorf("acquire id token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &authError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

// retryableGet retries fn with exponential backoff on transient errors,
// but returns immediately (no retry) when fn fails with an *authError,
// per spec §4.8 step 5's "fail on authentication errors".
func retryableGet(ctx context.Context, cfg retry.Config, fn func(context.Context) ([]byte, error)) (raw []byte, permanentErr, err error) {
	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var caught *authError
	raw, _, err = retry.Do(innerCtx, cfg, func(ctx context.Context) ([]byte, error) {
		body, ferr := fn(ctx)
		var ae *authError
		if errors.As(ferr, &ae) {
			caught = ae
			cancel() // stop retrying: this failure is not transient
			return nil, ferr
		}
		return body, ferr
	})
	if caught != nil {
		return nil, caught, nil
	}
	return raw, nil, err
}

