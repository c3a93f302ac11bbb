// Package agent implements the client-side protocol for the remote
// planning agent: the HTTP endpoints and the per-plan session lifecycle.
package agent

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

	"github.com/daniel-c5656/ai-dvisor/internal/plan"
)

// maxResponseBytes caps agent response bodies.
const maxResponseBytes = 1 << 20

// ErrAgentUnavailable is returned when any agent endpoint answers with a
// status of 400 or higher, or cannot be reached at all.
var ErrAgentUnavailable = errors.New("agent unavailable")

// Client is an HTTP client for the agent service. All request parameters
// travel as URL query parameters.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an agent client. A nil httpClient gets a default with
// a request timeout; agent asks can be slow, so the timeout is generous.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// createResponse carries the new session id. Receiving the id in the
// create response is the explicit "session ready" acknowledgment; nothing
// needs to poll the document afterwards.
type createResponse struct {
	ID string `json:"id"`
}

// askResponse is the reply envelope from the ask endpoint.
type askResponse struct {
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

// CreateSession creates a new agent session bound to a plan and returns
// its id.
func (c *Client) CreateSession(ctx context.Context, user plan.User, planID string) (string, error) {
	q := url.Values{}
	q.Set("user_id", user.ID)
	q.Set("plan_id", planID)
	q.Set("major", user.Major)

	body, err := c.do(ctx, http.MethodPost, "/session/create", q)
	if err != nil {
		return "", err
	}

	var created createResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode session create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("session create response missing id")
	}
	return created.ID, nil
}

// DeleteSession retires a session. Callers treat failure as non-fatal; a
// stale server-side session is acceptable garbage.
func (c *Client) DeleteSession(ctx context.Context, user plan.User, planID, sessionID string) error {
	q := url.Values{}
	q.Set("user_id", user.ID)
	q.Set("plan_id", planID)
	q.Set("session_id", sessionID)

	_, err := c.do(ctx, http.MethodDelete, "/session/delete", q)
	return err
}

// Ask sends one user utterance to a bound session and returns the reply
// text. A reply envelope with no text yields ("", nil): a malformed reply
// is a soft no-op, not a user-visible error.
func (c *Client) Ask(ctx context.Context, user plan.User, sessionID, message string) (string, error) {
	q := url.Values{}
	q.Set("user_id", user.ID)
	q.Set("session_id", sessionID)
	q.Set("message", message)

	body, err := c.do(ctx, http.MethodGet, "/ask", q)
	if err != nil {
		return "", err
	}

	var reply askResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", nil
	}
	if len(reply.Content.Parts) == 0 {
		return "", nil
	}
	return reply.Content.Parts[0].Text, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAgentUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrAgentUnavailable, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	return body, nil
}
