package configapi

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

	"github.com/lkarlslund/chatsettings/pkg/catalog"
	"github.com/lkarlslund/chatsettings/pkg/version"
	"github.com/tidwall/gjson"
)

// AccessKeyHeader carries the builtin model access key.
const AccessKeyHeader = "X-Access-Key"

// ErrAccessKeyRejected is returned by GetBuiltinModels when the service does
// not accept the access key or returns no builtin provider.
var ErrAccessKeyRejected = errors.New("builtin access key rejected")

type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// BuiltinConfig is the public part of the server's builtin model settings.
type BuiltinConfig struct {
	Enabled  bool   `json:"enabled"`
	BaseURL  string `json:"base_url"`
	Provider string `json:"provider"`
}

// Client talks to the configuration service.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetProviders returns the custom provider catalog keyed by provider id.
func (c *Client) GetProviders(ctx context.Context) (map[string]catalog.ProviderConfig, error) {
	out := map[string]catalog.ProviderConfig{}
	if err := c.getJSON(ctx, "/api/v1/models/providers", "", &out); err != nil {
		return nil, fmt.Errorf("get providers: %w", err)
	}
	return out, nil
}

// GetProviderModels returns the models of one provider keyed by model id.
func (c *Client) GetProviderModels(ctx context.Context, providerID string) (map[string]catalog.ModelConfig, error) {
	if strings.TrimSpace(providerID) == "" {
		return nil, errors.New("get provider models: empty provider id")
	}
	out := map[string]catalog.ModelConfig{}
	p := "/api/v1/models/providers/" + url.PathEscape(providerID) + "/models"
	if err := c.getJSON(ctx, p, "", &out); err != nil {
		return nil, fmt.Errorf("get models for %s: %w", providerID, err)
	}
	return out, nil
}

// GetBuiltinModels returns the builtin provider and its models for the
// access key.
func (c *Client) GetBuiltinModels(ctx context.Context, accessKey string) (catalog.BuiltinBundle, error) {
	var out catalog.BuiltinBundle
	err := c.getJSON(ctx, "/api/v1/builtin-models/models", accessKey, &out)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			return catalog.BuiltinBundle{}, ErrAccessKeyRejected
		}
		return catalog.BuiltinBundle{}, fmt.Errorf("get builtin models: %w", err)
	}
	if out.Provider.ID == "" {
		return catalog.BuiltinBundle{}, ErrAccessKeyRejected
	}
	if out.Models == nil {
		out.Models = map[string]catalog.ModelConfig{}
	}
	return out, nil
}

// ValidateBuiltinKey asks the service whether the access key is accepted.
func (c *Client) ValidateBuiltinKey(ctx context.Context, accessKey string) (bool, error) {
	b, err := c.do(ctx, http.MethodPost, "/api/v1/builtin-models/validate", accessKey)
	if err != nil {
		return false, fmt.Errorf("validate builtin key: %w", err)
	}
	if !gjson.ValidBytes(b) {
		return false, errors.New("validate builtin key: response is not json")
	}
	return gjson.GetBytes(b, "valid").Bool(), nil
}

func (c *Client) GetBuiltinConfig(ctx context.Context, accessKey string) (BuiltinConfig, error) {
	var out BuiltinConfig
	if err := c.getJSON(ctx, "/api/v1/builtin-models/config", accessKey, &out); err != nil {
		return BuiltinConfig{}, fmt.Errorf("get builtin config: %w", err)
	}
	return out, nil
}

// EventsURL is the websocket endpoint announcing catalog reloads.
func (c *Client) EventsURL() string {
	u := c.baseURL + "/api/v1/models/events"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, p, accessKey string, out any) error {
	b, err := c.do(ctx, http.MethodGet, p, accessKey)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, p, accessKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if accessKey != "" {
		req.Header.Set(AccessKeyHeader, accessKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{
			Method:     method,
			Path:       p,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return b, nil
}

// IsStatus reports whether err carries an HTTP status equal to code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}
