package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"chatfeed/pkg/logger"
	"chatfeed/pkg/models"
)

// Client talks JSON to the chat API over fasthttp. Page fetches are
// throttled by a per-key limiter; signing calls are not (the signed-URL
// cache already coalesces them).
type Client struct {
	base     string
	token    string
	timeout  time.Duration
	hc       *fasthttp.Client
	limiters *limiterPool
}

// ClientConfig carries the knobs for a Client.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Per-key page fetch rate.
	RPS   float64
	Burst int
}

// NewClient creates an HTTP fetcher/signer against the given base URL.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:     cfg.BaseURL,
		token:    cfg.Token,
		timeout:  timeout,
		hc:       &fasthttp.Client{},
		limiters: newLimiterPool(cfg.RPS, cfg.Burst),
	}
}

// FetchPage implements PageFetcher.
func (c *Client) FetchPage(ctx context.Context, req Request) (models.Page, error) {
	if err := c.limiters.Wait(ctx, req.Key); err != nil {
		return models.Page{}, err
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("direction", string(req.Direction))
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	uri := fmt.Sprintf("%s/v1/feeds/%s/messages?%s", c.base, url.PathEscape(req.Key), q.Encode())

	var page models.Page
	if err := c.doJSON(ctx, fasthttp.MethodGet, uri, nil, &page); err != nil {
		return models.Page{}, fmt.Errorf("fetch page for %s: %w", req.Key, err)
	}
	logger.Debug("page_fetched", "key", req.Key, "direction", req.Direction, "count", len(page.Messages))
	return page, nil
}

// SignURL implements URLSigner for a single file.
func (c *Client) SignURL(ctx context.Context, fileID string) (models.SignedURL, error) {
	body, _ := json.Marshal(map[string]string{"file_id": fileID})
	var out models.SignedURL
	if err := c.doJSON(ctx, fasthttp.MethodPost, c.base+"/v1/files/sign", body, &out); err != nil {
		return models.SignedURL{}, fmt.Errorf("sign url for %s: %w", fileID, err)
	}
	return out, nil
}

// SignURLs implements URLSigner for a batch. The response may omit ids the
// server no longer knows; callers treat those as absent.
func (c *Client) SignURLs(ctx context.Context, fileIDs []string) ([]models.SignedURL, error) {
	body, _ := json.Marshal(map[string][]string{"file_ids": fileIDs})
	var out struct {
		URLs []models.SignedURL `json:"urls"`
	}
	if err := c.doJSON(ctx, fasthttp.MethodPost, c.base+"/v1/files/sign-batch", body, &out); err != nil {
		return nil, fmt.Errorf("sign urls (%d ids): %w", len(fileIDs), err)
	}
	return out.URLs, nil
}

// doJSON performs one request/response cycle with auth and JSON decoding.
// fasthttp has no context plumbing; the ctx deadline is folded into the
// per-attempt timeout and cancellation is checked up front.
func (c *Client) doJSON(ctx context.Context, method, uri string, body []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	if err := c.hc.DoTimeout(req, resp, timeout); err != nil {
		return err
	}
	if sc := resp.StatusCode(); sc != fasthttp.StatusOK {
		return fmt.Errorf("unexpected status %d", sc)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("invalid response json: %w", err)
	}
	return nil
}
