// Package authz asks the external policy decision service whether a caller
// may follow a subscription key.
package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lorrc/notification-relay/internal/core/ports"
)

const (
	evaluatePath    = "/api/v1/evaluate"
	decisionPermit  = "PERMIT"
	accessTypeWrite = "WRITE"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status from policy service")
	ErrAmbiguousResult  = errors.New("policy service returned an unexpected number of results")
)

type evaluateRequest struct {
	Subject         string `json:"subject"`
	SubscriptionKey string `json:"subscriptionKey"`
	AccessType      string `json:"accessType"`
}

type evaluateResponse struct {
	Results []struct {
		Decision struct {
			Type string `json:"type"`
		} `json:"decision"`
	} `json:"results"`
}

// Client calls the policy service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.AccessChecker = (*Client)(nil)

// NewClient creates a policy client. timeout bounds each evaluation.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "authz_client"),
	}
}

// CanAccess returns true only when the policy service permits the request.
func (c *Client) CanAccess(ctx context.Context, subject, subscriptionKey string) (bool, error) {
	body, err := json.Marshal(evaluateRequest{
		Subject:         subject,
		SubscriptionKey: subscriptionKey,
		AccessType:      accessTypeWrite,
	})
	if err != nil {
		return false, fmt.Errorf("marshal evaluate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+evaluatePath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("evaluate policy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.ErrorContext(ctx, "Error in authorization evaluation request", "status_code", resp.StatusCode)
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var result evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode evaluate response: %w", err)
	}
	if len(result.Results) != 1 {
		return false, fmt.Errorf("%w: %d", ErrAmbiguousResult, len(result.Results))
	}

	return result.Results[0].Decision.Type == decisionPermit, nil
}

// AllowAll permits every request. It is used when no policy service is configured.
type AllowAll struct{}

var _ ports.AccessChecker = AllowAll{}

func (AllowAll) CanAccess(context.Context, string, string) (bool, error) {
	return true, nil
}
