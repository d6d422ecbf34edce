// Package shopapi is a client for the storefront REST API.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL    = "http://localhost:8000"
	DefaultAuthScheme = "Token"
	DefaultTimeout    = 10 * time.Second

	maxErrorBody = 64 << 10
)

type Options struct {
	BaseURL    string
	AuthScheme string
	Timeout    time.Duration

	// RetryAttempts bounds GET attempts; writes are sent once.
	RetryAttempts   int
	RetryInitial    time.Duration
	RetryMaxElapsed time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	baseURL    string
	authScheme string
	http       *http.Client
	logger     *zap.Logger

	retryAttempts   int
	retryInitial    time.Duration
	retryMaxElapsed time.Duration

	sneakers singleflight.Group
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.AuthScheme == "" {
		opts.AuthScheme = DefaultAuthScheme
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = 200 * time.Millisecond
	}
	if opts.RetryMaxElapsed <= 0 {
		opts.RetryMaxElapsed = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		authScheme:      opts.AuthScheme,
		http:            httpClient,
		logger:          opts.Logger.With(zap.String("component", "shopapi")),
		retryAttempts:   opts.RetryAttempts,
		retryInitial:    opts.RetryInitial,
		retryMaxElapsed: opts.RetryMaxElapsed,
	}
}

type request struct {
	method     string
	path       string
	credential string
	body       any
}

// do sends req and decodes a 2xx body into out when out is not nil.
// GETs are retried on transport errors and 5xx responses.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
	}

	attempt := func() error {
		err := c.roundTrip(ctx, req, payload, out)
		if err == nil {
			return nil
		}
		if req.method != http.MethodGet || !retryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Debug("retrying request",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Error(err))
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.MaxElapsedTime = c.retryMaxElapsed

	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(c.retryAttempts-1))
	b = backoff.WithContext(b, ctx)

	return backoff.Retry(attempt, b)
}

func (c *Client) roundTrip(ctx context.Context, req request, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.credential != "" {
		httpReq.Header.Set("Authorization", c.authScheme+" "+req.credential)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http.Do %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(req.method, req.path, resp.StatusCode, raw)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	// an empty 2xx body leaves out untouched
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}

	return nil
}
