// Package gateway is the HTTP data-access layer for the hosted tabular
// store. It translates typed operations into REST requests (equality-filter
// queries, insert, patch, delete) and owns auth-header injection.
package gateway

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

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	restPrefix = "/rest/v1/"
	authPrefix = "/auth/v1/"

	defaultTimeout = 30 * time.Second
)

// Filter is an equality predicate on a single column.
type Filter struct {
	Field string
	Value string
}

// Eq builds an equality filter.
func Eq(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

// Query describes a read against one collection. Projection is a server-side
// select expression passed through unmodified; empty means all columns.
type Query struct {
	Filters    []Filter
	Projection string
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is the set of primitives consumers depend on.
// Consumers define mocks against this interface, not the HTTP client.
type Store interface {
	Select(ctx context.Context, collection string, q Query) ([]byte, error)
	Insert(ctx context.Context, collection string, body any) error
	Patch(ctx context.Context, collection string, filters []Filter, body any) error
	Delete(ctx context.Context, collection string, filters []Filter) error
}

// Config holds the connection settings for the hosted store.
type Config struct {
	BaseURL string
	APIKey  string
	Token   string // bearer token for data endpoints
	Timeout time.Duration
}

// Client implements Store over REST.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	settings := gobreaker.Settings{
		Name: "remote-store",
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Client-side errors must not trip the breaker.
			var re *RemoteError
			return errors.As(err, &re) && re.Code >= 400 && re.Code < 500
		},
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		log:     log,
	}
}

func (c *Client) Select(ctx context.Context, collection string, q Query) ([]byte, error) {
	params := url.Values{}
	for _, f := range q.Filters {
		params.Set(f.Field, "eq."+f.Value)
	}
	if q.Projection != "" {
		params.Set("select", q.Projection)
	}
	if q.OrderBy != "" {
		dir := ".asc"
		if q.Descending {
			dir = ".desc"
		}
		params.Set("order", q.OrderBy+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return c.do(ctx, http.MethodGet, restPrefix+collection, params, nil)
}

func (c *Client) Insert(ctx context.Context, collection string, body any) error {
	_, err := c.do(ctx, http.MethodPost, restPrefix+collection, nil, body)
	return err
}

func (c *Client) Patch(ctx context.Context, collection string, filters []Filter, body any) error {
	_, err := c.do(ctx, http.MethodPatch, restPrefix+collection, filterParams(filters), body)
	return err
}

func (c *Client) Delete(ctx context.Context, collection string, filters []Filter) error {
	_, err := c.do(ctx, http.MethodDelete, restPrefix+collection, filterParams(filters), nil)
	return err
}

// AuthPost posts to an auth endpoint. Auth endpoints carry the API key but
// never the bearer header.
func (c *Client) AuthPost(ctx context.Context, endpoint string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, authPrefix+endpoint, nil, body)
}

func filterParams(filters []Filter) url.Values {
	params := url.Values{}
	for _, f := range filters {
		params.Set(f.Field, "eq."+f.Value)
	}
	return params
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(buf)
	}

	target := c.cfg.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	c.setHeaders(req, path, body != nil)

	out, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(req)
	})
	if err != nil {
		var re *RemoteError
		if !errors.As(err, &re) {
			// breaker-open and other non-HTTP failures
			re = transportError(err)
			err = re
		}
		c.log.Error().
			Str("method", method).
			Str("path", path).
			Int("code", re.Code).
			Msg(re.Message)
		return nil, err
	}
	return out, nil
}

func (c *Client) setHeaders(req *http.Request, path string, hasBody bool) {
	req.Header.Set("apikey", c.cfg.APIKey)
	// Auth endpoints authenticate with the API key only.
	if !strings.HasPrefix(path, authPrefix) {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Method == http.MethodPost || req.Method == http.MethodPatch {
		// The store does not echo rows back on writes.
		req.Header.Set("Prefer", "return=minimal")
	}
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Code: resp.StatusCode, Message: string(data)}
	}
	return data, nil
}
