// Package statusclient queries a running receiver's /healthz endpoint.
package statusclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"sensorstream/internal/httpapi"
)

type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient talks to the receiver at baseURL, e.g. http://192.168.1.10:8082.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// Status fetches the receiver status. An unhealthy receiver (HTTP 503) still
// returns its status together with an error.
func (c *Client) Status(ctx context.Context) (*httpapi.StatusResult, error) {
	var body httpapi.Result[httpapi.StatusResult]
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&body).
		SetError(&body).
		Get("/healthz")
	if err != nil {
		return nil, fmt.Errorf("failed to call receiver status: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		if body.Code == httpapi.ResultSuccess {
			c.logger.Warn("Receiver reports unhealthy backends", zap.Any("services", body.Result.Services))
			return &body.Result, fmt.Errorf("receiver is %s", body.Result.Status)
		}
		return nil, fmt.Errorf("receiver status returned HTTP %d", resp.StatusCode())
	default:
		return nil, fmt.Errorf("receiver status returned HTTP %d", resp.StatusCode())
	}

	if body.Code != httpapi.ResultSuccess {
		return nil, fmt.Errorf("receiver status error: %s (code: %d)", body.Message, body.Code)
	}

	c.logger.Debug("Receiver status retrieved",
		zap.Int("connection_count", body.Result.ConnectionCount),
	)
	return &body.Result, nil
}
