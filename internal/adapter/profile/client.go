// Package profile talks to the remote user-profile service.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/item-catalog/internal/core/domain"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status from profile service")
	// ErrRejected is a 4xx answer about one subject. It says nothing about the
	// health of the service, so it never trips the breaker.
	ErrRejected = fmt.Errorf("%w: request rejected", ErrUnexpectedStatus)
	ErrMalformedPayload = errors.New("malformed profile payload")
)

const maxBodyBytes = 1 << 20

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         5,
		Interval:            30 * time.Second,
		Timeout:             60 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Client implements port.ProfileClient over HTTP: GET <base>/<subject_id>
// answering {"data": {...}}. It never retries; a tripped breaker fails fast.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(baseURL string, timeout time.Duration, breaker BreakerConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "profile-service",
			MaxRequests: breaker.MaxRequests,
			Interval:    breaker.Interval,
			Timeout:     breaker.Timeout,
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrRejected)
			},
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breaker.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

type envelope struct {
	Data domain.Profile `json:"data"`
}

func (c *Client) FetchProfile(ctx context.Context, subjectID string) (domain.Profile, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, subjectID)
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Profile), nil
}

func (c *Client) fetch(ctx context.Context, subjectID string) (domain.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(subjectID), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %d", ErrRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	return body.Data, nil
}
