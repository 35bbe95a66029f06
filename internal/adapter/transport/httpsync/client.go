package httpsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/osk/fintrack/internal/domain"
)

// Client implements usecase.Transport over the backend's HTTP sync API.
// Push and pull errors bubble up unretried; the queue's own retry
// classification decides what happens next, so a transport-level retry here
// would double-count attempts.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Config wires a Client.
type Config struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type pushRequest struct {
	Items []domain.PushItem `json:"items"`
}

type pushResponse struct {
	Results []domain.PushResult `json:"results"`
}

// Push sends a batch of queued mutations and returns per-entry results.
func (c *Client) Push(ctx context.Context, tenantID string, batch []domain.PushItem) ([]domain.PushResult, error) {
	body, err := json.Marshal(pushRequest{Items: batch})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/sync/push?tenantId=%s", c.baseURL, url.QueryEscape(tenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("push", resp)
	}

	var out pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	return out.Results, nil
}

// Pull returns entities of the type changed after since. A zero since asks
// for everything.
func (c *Client) Pull(ctx context.Context, entityType domain.EntityType, tenantID string, since time.Time) (*domain.PullResult, error) {
	q := url.Values{"tenantId": {tenantID}}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	endpoint := fmt.Sprintf("%s/sync/pull/%s?%s", c.baseURL, url.PathEscape(string(entityType)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("pull", resp)
	}

	var out domain.PullResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pull response: %w", err)
	}

	return &out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	return fmt.Errorf("%s: backend returned %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}
