package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// webDriverClient is a minimal W3C WebDriver client covering the four
// operations the browser driver needs: create a session, navigate it, run a
// script, and destroy the session. The automation endpoint is any
// WebDriver-compatible server (chromedriver, geckodriver, Selenium grid).
type webDriverClient struct {
	baseURL    string
	httpClient *http.Client
}

func newWebDriverClient(baseURL string) *webDriverClient {
	return &webDriverClient{baseURL: baseURL, httpClient: http.DefaultClient}
}

type webDriverResponse struct {
	Value json.RawMessage `json:"value"`
}

type webDriverErrorValue struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *webDriverClient) NewSession(ctx context.Context) (string, error) {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": map[string]interface{}{
				"goog:chromeOptions": map[string]interface{}{
					"args": []string{"--headless=new"},
				},
			},
		},
	}
	value, err := c.do(ctx, "POST", "/session", body)
	if err != nil {
		return "", err
	}
	var session struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(value, &session); err != nil || session.SessionID == "" {
		return "", fmt.Errorf("automation endpoint returned no session ID: %s", string(value))
	}
	return session.SessionID, nil
}

func (c *webDriverClient) Navigate(ctx context.Context, sessionID, url string) error {
	_, err := c.do(ctx, "POST", "/session/"+sessionID+"/url", map[string]string{"url": url})
	return err
}

// ExecuteScript runs a synchronous script in the page and returns the
// JSON-encoded script result.
func (c *webDriverClient) ExecuteScript(ctx context.Context, sessionID, script string) (json.RawMessage, error) {
	body := map[string]interface{}{"script": script, "args": []interface{}{}}
	return c.do(ctx, "POST", "/session/"+sessionID+"/execute/sync", body)
}

func (c *webDriverClient) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, "DELETE", "/session/"+sessionID, nil)
	return err
}

func (c *webDriverClient) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("automation endpoint request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed webDriverResponse
	if len(respData) > 0 {
		if err := json.Unmarshal(respData, &parsed); err != nil {
			return nil, fmt.Errorf("malformed response from automation endpoint: %s", string(respData))
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var wdErr webDriverErrorValue
		_ = json.Unmarshal(parsed.Value, &wdErr)
		if wdErr.Error != "" {
			return nil, fmt.Errorf("automation endpoint returned %s: %s", wdErr.Error, wdErr.Message)
		}
		return nil, fmt.Errorf("automation endpoint returned HTTP %d for %s %s", resp.StatusCode, method, path)
	}
	return parsed.Value, nil
}
