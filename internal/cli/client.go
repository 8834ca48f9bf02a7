package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Health() (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/v1/health")
}

func (c *Client) ListHosts() (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/v1/hosts")
}

func (c *Client) GetHost(hostname string) (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/v1/hosts/"+url.PathEscape(hostname))
}

func (c *Client) GetHostProcesses(hostname string) (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/v1/hosts/"+url.PathEscape(hostname)+"/processes")
}

func (c *Client) GetProcesses() (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/v1/processes")
}

func (c *Client) GetStats() (map[string]interface{}, error) {
	return c.do(http.MethodGet, "/api/v1/stats")
}

// Purge triggers retention: snapshots older than maxAgeHours are deleted.
// maxAgeHours <= 0 uses the server default.
func (c *Client) Purge(maxAgeHours int) (map[string]interface{}, error) {
	path := "/api/v1/snapshots/expired"
	if maxAgeHours > 0 {
		path = fmt.Sprintf("%s?max_age_hours=%d", path, maxAgeHours)
	}
	return c.do(http.MethodDelete, path)
}

func (c *Client) do(method, path string) (map[string]interface{}, error) {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return result, nil
}
