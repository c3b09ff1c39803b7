// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

// Package bitrix is the Bitrix24 REST client. Every upstream exchange goes
// through a single webhook base URL, behind a token-bucket rate limiter
// (Bitrix24 throttles aggressively) and a circuit breaker that sheds load
// when the portal degrades.
package bitrix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/Roughriver74/bitrix-dash/internal/config"
	"github.com/Roughriver74/bitrix-dash/internal/logging"
	"github.com/Roughriver74/bitrix-dash/internal/metrics"
)

const (
	// pageSize is the fixed Bitrix24 result page size.
	pageSize = 50

	// maxRecords caps GetAll accumulation. Hitting it truncates with a
	// warning rather than failing the whole pipeline.
	maxRecords = 10000

	// maxListIterations caps the ID-cursor walk in ListTasks.
	maxListIterations = 100

	breakerName = "bitrix-api"
)

// Client is a Bitrix24 REST client bound to one inbound webhook.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
}

// New creates a client for the configured webhook. Circuit breaker
// configuration follows the usual shape for flaky upstream APIs:
// 1 minute measurement window, 2 minute recovery timeout, opens after a
// 60% failure rate across at least 10 requests.
func New(cfg config.BitrixConfig) *Client {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.WebhookURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: breaker,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// apiResponse is the Bitrix24 REST envelope.
type apiResponse struct {
	Result           json.RawMessage `json:"result"`
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Total            int             `json:"total"`
	Next             int             `json:"next"`
}

// Call performs a single REST call and returns the raw result payload.
// Timeouts surface as ErrTimeout; API-level rejections as *APIError.
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("bitrix: rate limiter: %w", err)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.do(ctx, method, params)
	})
	metrics.RecordBitrixCall(method, time.Since(start), classifyError(err))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker"
	case IsTimeout(err):
		return "timeout"
	default:
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "api"
		}
		return "transport"
	}
}

// do performs the HTTP exchange for one method call.
func (c *Client) do(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("bitrix: encoding %s params: %w", method, err)
	}

	url := c.baseURL + "/" + method + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bitrix: building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, method)
		}
		return nil, fmt.Errorf("bitrix: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, method)
		}
		return nil, fmt.Errorf("bitrix: reading %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("bitrix: decoding %s response (HTTP %d): %w", method, resp.StatusCode, err)
	}

	if len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		return nil, &APIError{
			Code:        errorCode(envelope.Error),
			Description: envelope.ErrorDescription,
			Method:      method,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bitrix: %s returned HTTP %d", method, resp.StatusCode)
	}

	return envelope.Result, nil
}

// errorCode extracts the error code, which arrives as either a bare string
// or an object with an "error" field depending on the endpoint.
func errorCode(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Error != "" {
		return obj.Error
	}
	return string(raw)
}

// BatchCommand is one named sub-request of a batch call.
type BatchCommand struct {
	Method string
	Params map[string]interface{}
}

// batchResult is the nested envelope of the batch method.
type batchResult struct {
	Result      map[string]json.RawMessage `json:"result"`
	ResultError map[string]json.RawMessage `json:"result_error"`
	ResultTotal map[string]int             `json:"result_total"`
	ResultNext  map[string]int             `json:"result_next"`
}

// Batch executes up to 50 commands in one HTTP exchange. Results come back
// keyed by command name; per-command errors are returned as *APIError values
// in the error map so callers can treat sub-failures individually.
func (c *Client) Batch(ctx context.Context, commands map[string]BatchCommand) (map[string]json.RawMessage, map[string]error, error) {
	cmd := make(map[string]string, len(commands))
	for name, bc := range commands {
		query, err := encodeBatchQuery(bc.Params)
		if err != nil {
			return nil, nil, fmt.Errorf("bitrix: encoding batch command %s: %w", name, err)
		}
		cmd[name] = bc.Method + query
	}

	result, err := c.Call(ctx, "batch", map[string]interface{}{
		"halt": 0,
		"cmd":  cmd,
	})
	if err != nil {
		return nil, nil, err
	}

	var br batchResult
	if err := json.Unmarshal(result, &br); err != nil {
		return nil, nil, fmt.Errorf("bitrix: decoding batch result: %w", err)
	}

	cmdErrors := make(map[string]error, len(br.ResultError))
	for name, raw := range br.ResultError {
		cmdErrors[name] = &APIError{
			Code:   errorCode(raw),
			Method: commands[name].Method,
		}
	}
	return br.Result, cmdErrors, nil
}

// encodeBatchQuery renders params as the PHP-style query string batch
// sub-commands expect: filter[STATUS]=5&select[0]=ID&...
func encodeBatchQuery(params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	values := url.Values{}
	for key, value := range params {
		if err := encodeBatchValue(values, key, value); err != nil {
			return "", err
		}
	}
	return "?" + values.Encode(), nil
}

func encodeBatchValue(values url.Values, key string, value interface{}) error {
	switch v := value.(type) {
	case map[string]interface{}:
		for k, nested := range v {
			if err := encodeBatchValue(values, key+"["+k+"]", nested); err != nil {
				return err
			}
		}
	case map[string]string:
		for k, nested := range v {
			values.Set(key+"["+k+"]", nested)
		}
	case []string:
		for i, item := range v {
			values.Set(fmt.Sprintf("%s[%d]", key, i), item)
		}
	case []interface{}:
		for i, item := range v {
			if err := encodeBatchValue(values, fmt.Sprintf("%s[%d]", key, i), item); err != nil {
				return err
			}
		}
	case string:
		values.Set(key, v)
	case bool:
		values.Set(key, strconv.FormatBool(v))
	case int:
		values.Set(key, strconv.Itoa(v))
	case float64:
		values.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("unsupported batch param type %T for %s", value, key)
	}
	return nil
}

// extractRecords pulls the record list out of a result payload. Endpoints
// differ in shape: some return a bare array, task endpoints wrap it in
// "tasks", others in "items" or "result".
func extractRecords(result json.RawMessage) ([]RawRecord, error) {
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var records []RawRecord
	if err := json.Unmarshal(result, &records); err == nil {
		return records, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(result, &wrapper); err != nil {
		return nil, fmt.Errorf("bitrix: unexpected result shape: %w", err)
	}
	for _, key := range []string{"tasks", "items", "result"} {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &records); err == nil {
			return records, nil
		}
	}
	return nil, errors.New("bitrix: no record list in result payload")
}

// GetAll fetches every page of a list method. The first request passes
// start=0; subsequent requests pass start=-1, which tells Bitrix24 to skip
// the expensive total count. A short page ends the walk. Accumulation stops
// at maxRecords with a warning rather than an error.
func (c *Client) GetAll(ctx context.Context, method string, params map[string]interface{}) ([]RawRecord, error) {
	var all []RawRecord
	start := 0

	for {
		page, err := c.fetchPage(ctx, method, params, start)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)
		metrics.BitrixPagesFetched.WithLabelValues(method).Inc()
		metrics.BitrixRecordsFetched.WithLabelValues(method).Add(float64(len(page)))

		if len(page) < pageSize {
			return all, nil
		}
		if len(all) >= maxRecords {
			logging.Ctx(ctx).Warn().
				Str("method", method).
				Int("records", len(all)).
				Msg("Record ceiling reached, truncating result set")
			return all[:maxRecords], nil
		}
		start = -1
	}
}

func (c *Client) fetchPage(ctx context.Context, method string, params map[string]interface{}, start int) ([]RawRecord, error) {
	p := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		p[k] = v
	}
	p["start"] = start

	result, err := c.Call(ctx, method, p)
	if err != nil {
		return nil, err
	}
	return extractRecords(result)
}

// ListTasks walks tasks.task.list with an ascending ID cursor instead of
// offset pagination, which degrades badly on large portals. Each page is
// ordered by ID and the next page filters on ">ID" of the last record seen.
//
// A record without a parseable ID would stall the cursor, so the walk logs
// the anomaly and returns what it has. The iteration cap bounds the walk
// against a misbehaving upstream.
func (c *Client) ListTasks(ctx context.Context, filter map[string]interface{}, selectFields []string) ([]RawRecord, error) {
	var all []RawRecord
	lastID := 0

	for iteration := 0; iteration < maxListIterations; iteration++ {
		pageFilter := make(map[string]interface{}, len(filter)+1)
		for k, v := range filter {
			pageFilter[k] = v
		}
		if lastID > 0 {
			pageFilter[">ID"] = lastID
		}

		params := map[string]interface{}{
			"order":  map[string]string{"ID": "ASC"},
			"filter": pageFilter,
			"select": selectFields,
			"limit":  pageSize,
			"start":  -1,
		}

		result, err := c.Call(ctx, "tasks.task.list", params)
		if err != nil {
			return nil, err
		}
		page, err := extractRecords(result)
		if err != nil {
			return nil, err
		}

		metrics.BitrixPagesFetched.WithLabelValues("tasks.task.list").Inc()
		metrics.BitrixRecordsFetched.WithLabelValues("tasks.task.list").Add(float64(len(page)))

		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)

		id := page[len(page)-1].Int("ID")
		if id == 0 {
			logging.Ctx(ctx).Warn().
				Int("records", len(all)).
				Msg("Task record without parseable ID, stopping cursor walk")
			return all, nil
		}
		lastID = id

		if len(page) < pageSize {
			return all, nil
		}
	}

	logging.Ctx(ctx).Warn().
		Int("records", len(all)).
		Int("iterations", maxListIterations).
		Msg("Task cursor iteration cap reached")
	return all, nil
}
