// Package remote performs the HTTP exchanges with the article service.
// It never interprets responses; that is the classifier's job.
package remote

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

	"article-desk/internal/outcome"

	"go.uber.org/zap"
)

// ErrInvalidRequest marks an Exchange whose request could not be built, so
// nothing was sent.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one call to the article service. Token is sent as the
// Authorization header when non-empty.
type Request struct {
	Method string
	Path   string
	Token  string
	Body   any
}

// Transport performs a request and reports whatever came back.
// Implementations must not return early without an Exchange: a failure
// to reach the server is reported through Exchange.Err with Status 0, and a
// request that could not be built wraps ErrInvalidRequest.
type Transport interface {
	Do(ctx context.Context, req Request) outcome.Exchange
}

// Client talks to the article service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for baseURL (for example http://localhost:9000/api).
// A zero timeout leaves requests bounded only by ctx.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) Do(ctx context.Context, req Request) outcome.Exchange {
	logger := c.logger.With(zap.String("method", req.Method), zap.String("path", req.Path))

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return outcome.Exchange{Err: fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return outcome.Exchange{Err: fmt.Errorf("%w: %v", ErrInvalidRequest, err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", req.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		logger.Debug("Request failed", zap.Error(err))
		return outcome.Exchange{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		// The status still counts; an unreadable body just carries no message.
		logger.Warn("Failed to read response body", zap.Int("status", resp.StatusCode), zap.Error(err))
	}

	logger.Debug("Request finished",
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))
	return outcome.Exchange{Status: resp.StatusCode, Body: data, Err: err}
}
