// Package backend talks to the appointment persistence service and the
// service catalog over REST.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"klinikcal/internal/appointment"
	"klinikcal/internal/cache"
	appLog "klinikcal/internal/log"
	"klinikcal/internal/metrics"
	"klinikcal/internal/model"
)

const (
	OpList     = "list"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpServices = "services"
)

// ErrNotModified is returned when the backend answers 304 and no cached body
// is available to satisfy it.
var ErrNotModified = errors.New("not modified but no cached body available")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend %s: %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// Token is sent as a bearer token on every request when set.
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Cache      cache.Store
	Metrics    *metrics.CalendarMetrics
}

// Client is the REST client of the appointment backend. Reads are
// conditional (ETag / Last-Modified) against Cache and fall back to the
// cached body when the backend fails; mutations are never retried or served
// from cache.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	cache   cache.Store
	metrics *metrics.CalendarMetrics
	now     func() time.Time
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("backend base URL is empty")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend base URL %q must be absolute", redactURL(opts.BaseURL))
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	store := opts.Cache
	if store == nil {
		store = cache.NewMemory(0)
	}

	return &Client{
		base:    base,
		token:   opts.Token,
		http:    hc,
		cache:   store,
		metrics: opts.Metrics,
		now:     time.Now,
	}, nil
}

// FetchResult is the outcome of a conditional read.
type FetchResult struct {
	Body []byte
	// FromCache is true when the body was reused (304 or fallback after a
	// backend failure).
	FromCache bool
	// Stale is true when the cached body was served because the backend failed.
	Stale bool
}

// ListWeek fetches the stored records relevant to the week starting at
// weekStart: non-recurring records anchored in that week and every recurring
// series of the doctor. Expansion happens on our side.
func (c *Client) ListWeek(ctx context.Context, doctorID string, weekStart time.Time) ([]model.AppointmentRecord, FetchResult, error) {
	q := url.Values{}
	q.Set("doctorId", doctorID)
	q.Set("weekStart", weekStart.UTC().Format(time.RFC3339))

	gen, err := c.cache.Generation(ctx, doctorID)
	if err != nil {
		appLog.Warn("cache generation lookup failed", "doctor_id", doctorID, "err", err)
	}
	key := cache.WeekKey(doctorID, weekStart, gen)

	res, err := c.conditionalGet(ctx, OpList, c.endpoint("calendar-appointments", q), key)
	if err != nil {
		return nil, FetchResult{}, err
	}

	var records []model.AppointmentRecord
	if err := decodeList(res.Body, &records); err != nil {
		return nil, FetchResult{}, fmt.Errorf("decode appointments: %w", err)
	}
	return records, res, nil
}

// Services fetches the service catalog.
func (c *Client) Services(ctx context.Context) ([]model.Service, error) {
	res, err := c.conditionalGet(ctx, OpServices, c.endpoint("services", nil), cache.ServicesKey())
	if err != nil {
		return nil, err
	}
	var out []model.Service
	if err := decodeList(res.Body, &out); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	return out, nil
}

// Create stores a new appointment and returns the record the backend created.
func (c *Client) Create(ctx context.Context, req appointment.Request) (model.AppointmentRecord, error) {
	var rec model.AppointmentRecord
	body, err := c.send(ctx, OpCreate, http.MethodPost, c.endpoint("calendar-appointments", nil), req)
	if err != nil {
		return rec, err
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &rec); err != nil {
			appLog.Warn("create response not decodable", "err", err)
		}
	}
	c.invalidate(ctx, req.DoctorID)
	return rec, nil
}

// Update sends a PUT for id. id may be the synthetic id of a series
// occurrence; the body says whether the whole series is meant.
func (c *Client) Update(ctx context.Context, id string, req appointment.Request) error {
	if id == "" {
		return errors.New("update: empty appointment id")
	}
	_, err := c.send(ctx, OpUpdate, http.MethodPut, c.endpoint("calendar-appointments/"+url.PathEscape(id), nil), req)
	if err != nil {
		return err
	}
	c.invalidate(ctx, req.DoctorID)
	return nil
}

// Delete removes id with the given scope.
func (c *Client) Delete(ctx context.Context, doctorID, id string, mode appointment.DeleteMode) error {
	if id == "" {
		return errors.New("delete: empty appointment id")
	}
	if _, err := appointment.ParseDeleteMode(string(mode)); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("mode", string(mode))
	_, err := c.send(ctx, OpDelete, http.MethodDelete, c.endpoint("calendar-appointments/"+url.PathEscape(id), q), nil)
	if err != nil {
		return err
	}
	c.invalidate(ctx, doctorID)
	return nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// invalidate bumps the doctor's cache generation so no pre-mutation week
// can be served as a stale fallback.
func (c *Client) invalidate(ctx context.Context, doctorID string) {
	if doctorID == "" {
		return
	}
	if _, err := c.cache.Bump(ctx, doctorID); err != nil {
		appLog.Error("cache invalidation failed", err, "doctor_id", doctorID)
	}
}

func (c *Client) conditionalGet(ctx context.Context, op, rawURL, key string) (FetchResult, error) {
	cached, haveCached, err := c.cache.Get(ctx, key)
	if err != nil {
		appLog.Warn("cache read failed", "key", key, "err", err)
		haveCached = false
	}
	c.metrics.ObserveCache(haveCached)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	if haveCached {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	appLog.Debug("backend fetch start", "op", op, "url", redactURL(rawURL))

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveBackend(op, "error", c.now().Sub(start).Seconds())
		if ctx.Err() == nil && haveCached && len(cached.Body) > 0 {
			appLog.Error("backend fetch network error, using cached body", err, "op", op, "url", redactURL(rawURL))
			return FetchResult{Body: cached.Body, FromCache: true, Stale: true}, nil
		}
		return FetchResult{}, fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveBackend(op, strconv.Itoa(resp.StatusCode), c.now().Sub(start).Seconds())

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, fmt.Errorf("backend %s: read body: %w", op, readErr)
		}
		entry := cache.Entry{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Body:         body,
			UpdatedAt:    c.now().UTC(),
		}
		if err := c.cache.Put(ctx, key, entry); err != nil {
			appLog.Error("cache save failed", err, "key", key)
		}
		appLog.Debug("backend fetch success", "op", op, "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{Body: body}, nil

	case http.StatusNotModified:
		if !haveCached || len(cached.Body) == 0 {
			return FetchResult{}, fmt.Errorf("backend %s: %w", op, ErrNotModified)
		}
		appLog.Debug("backend fetch not modified; using cache", "op", op)
		return FetchResult{Body: cached.Body, FromCache: true}, nil

	default:
		statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
		if resp.StatusCode >= 500 && haveCached && len(cached.Body) > 0 {
			appLog.Error("backend fetch non-OK, using cached body", statusErr, "op", op, "url", redactURL(rawURL))
			return FetchResult{Body: cached.Body, FromCache: true, Stale: true}, nil
		}
		return FetchResult{}, statusErr
	}
}

func (c *Client) send(ctx context.Context, op, method, rawURL string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("backend %s: encode: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveBackend(op, "error", c.now().Sub(start).Seconds())
		return nil, fmt.Errorf("backend %s: %w", op, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveBackend(op, strconv.Itoa(resp.StatusCode), c.now().Sub(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend %s: read body: %w", op, err)
	}
	appLog.Info("backend mutation", "op", op, "method", method, "url", redactURL(rawURL), "status", resp.StatusCode)
	return out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeList accepts a bare JSON array or an object wrapping it in "data".
func decodeList(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return err
		}
		if len(env.Data) == 0 {
			return errors.New(`object response without "data"`)
		}
		trimmed = env.Data
	}
	return json.Unmarshal(trimmed, v)
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}

// redactURL hides path and query of a backend URL for logging purposes.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "backend://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
