package planet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/properties"
	"golang.org/x/oauth2/clientcredentials"
)

// Client talks to the Planet data, compute and download endpoints.
type Client struct {
	BaseURL   string
	ItemType  string
	AssetType string
	Retries   int
	RetryWait time.Duration

	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client authenticated with OAuth2 client credentials when
// a token URL is configured and with the API key otherwise.
func NewClient(ctx context.Context, cfg properties.PlanetConfig) (*Client, error) {
	c := &Client{
		BaseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		ItemType:  cfg.ItemType,
		AssetType: cfg.AssetType,
		Retries:   cfg.Retries,
		RetryWait: 5 * time.Second,
		apiKey:    cfg.APIKey,
	}

	switch {
	case cfg.TokenURL != "":
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("missing required environment variables: PL_CLIENT_ID or PL_CLIENT_SECRET")
		}
		config := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		c.httpClient = config.Client(ctx)
	case cfg.APIKey != "":
		c.httpClient = &http.Client{Timeout: 10 * time.Minute}
	default:
		return nil, fmt.Errorf("missing required environment variables: PL_API_KEY or PL_TOKEN_URL")
	}
	return c, nil
}

// NewClientWithHTTP returns an API-key client over an existing http.Client.
func NewClientWithHTTP(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		ItemType:   "PSScene4Band",
		AssetType:  "analytic",
		Retries:    3,
		RetryWait:  time.Second,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *Client) resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base, err := url.Parse(c.BaseURL + "/")
	if err != nil {
		return c.BaseURL + "/" + strings.TrimPrefix(ref, "/")
	}
	rel, err := url.Parse(strings.TrimPrefix(ref, "/"))
	if err != nil {
		return c.BaseURL + "/" + strings.TrimPrefix(ref, "/")
	}
	return base.ResolveReference(rel).String()
}

// do sends the request, retrying transport errors, 429 and 5xx responses.
// The caller closes the returned body.
func (c *Client) do(ctx context.Context, method, ref string, body []byte) (*http.Response, error) {
	target := c.resolve(ref)
	retries := c.Retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %s: %w", target, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.SetBasicAuth(c.apiKey, "")
		}

		response, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500:
			data, _ := io.ReadAll(io.LimitReader(response.Body, 512))
			response.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", response.StatusCode, strings.TrimSpace(string(data)))
		default:
			return response, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Planet request failed", "url", target, "attempt", attempt, "retries", retries, "error", lastErr)
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.RetryWait):
		}
	}
	return nil, &RemoteConnectionError{URL: target, Attempts: retries, Err: lastErr}
}

// sendJSON decodes a 2xx JSON response into out.
func (c *Client) sendJSON(ctx context.Context, method, ref string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
	}

	response, err := c.do(ctx, method, ref, body)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return &RemoteConnectionError{URL: c.resolve(ref), Attempts: 1, Err: err}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &StatusError{URL: c.resolve(ref), Status: response.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &MalformedResponseError{URL: c.resolve(ref), Field: "body", Err: err}
	}
	return nil
}
