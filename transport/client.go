// Package transport is the JSON-over-HTTP client the resource clients use.
// It does not retry; the query controller owns retry policy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/querycache"
)

const (
	tracerName   = "github.com/unkn0wn-root/querycache/transport"
	maxErrorBody = 1 << 20
)

type Options struct {
	BaseURL    string // required, e.g. http://localhost:3001
	HTTPClient *http.Client
	Tracer     trace.Tracer                  // nil => global provider
	Propagator propagation.TextMapPropagator // nil => global propagator
	Logger     querycache.Logger
	UserAgent  string
}

type Client struct {
	base   string
	http   *http.Client
	tracer trace.Tracer
	prop   propagation.TextMapPropagator
	log    querycache.Logger
	ua     string
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transport: base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("transport: parse base URL: %w", err)
	}
	c := &Client{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		http:   opts.HTTPClient,
		tracer: opts.Tracer,
		prop:   opts.Propagator,
		log:    opts.Logger,
		ua:     opts.UserAgent,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.prop == nil {
		c.prop = otel.GetTextMapPropagator()
	}
	if c.log == nil {
		c.log = querycache.NopLogger{}
	}
	return c, nil
}

// Get decodes the JSON response of GET path into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the response into out (nil discards).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Delete expects an empty or ignorable success body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (err error) {
	u := c.base + path
	ctx, span := c.tracer.Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", u),
		),
	)
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	c.prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", querycache.Fields{"method": method, "url": u, "err": err})
		return &TransportError{Op: method, URL: u, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.log.Debug("request done", querycache.Fields{
		"method": method, "url": u, "status": resp.StatusCode, "took": time.Since(start),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(method, u, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func newHTTPError(method, u string, resp *http.Response) *HTTPError {
	e := &HTTPError{Method: method, URL: u, Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		e.Message = body.Error
		e.FromServer = true
		return e
	}
	e.Message = http.StatusText(resp.StatusCode)
	if e.Message == "" {
		e.Message = resp.Status
	}
	return e
}
