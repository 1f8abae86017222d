package geoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the versioned Geoclient v1 base path on the NYC API portal.
const DefaultBaseURL = "https://api.nyc.gov/geo/geoclient/v1"

// subscriptionKeyHeader carries the NYC API portal credential.
const subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Record is the result object of one lookup: an arbitrarily nested mapping
// of response attribute to value. Numbers are kept as json.Number so that
// projected values round-trip exactly as the API wrote them.
type Record map[string]any

// Client issues single-record lookups against the Geoclient API. It holds no
// state across calls beyond the credential headers attached to every request.
type Client struct {
	client  HTTPClient        // HTTP client for making requests
	baseURL string            // versioned API base path
	headers map[string]string // headers attached to every request
	log     *slog.Logger      // logger for logging operations
}

// NewClient creates a Geoclient API client with a default HTTP client.
// An empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL, subscriptionKey string, log *slog.Logger) *Client {
	const timeout = 30
	return NewClientWithHTTP(&http.Client{
		Timeout: timeout * time.Second,
	}, baseURL, subscriptionKey, log)
}

// NewClientWithHTTP creates a client with a custom HTTP client.
// Useful for testing with mocked HTTP clients.
func NewClientWithHTTP(client HTTPClient, baseURL, subscriptionKey string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: map[string]string{
			subscriptionKeyHeader: subscriptionKey,
			"Cache-Control":       "no-cache",
		},
		log: log,
	}
}

// SetHeader attaches an extra header to every outgoing request. Header values
// are opaque to the client.
func (c *Client) SetHeader(name, value string) {
	c.headers[name] = value
}

// Lookup issues one GET against the named endpoint and returns the result
// object. A successful answer without a result yields ErrNoMatch; non-2xx
// statuses, malformed bodies and timeouts yield a RemoteError.
func (c *Client) Lookup(ctx context.Context, endpoint Endpoint, params url.Values) (Record, error) {
	reqURL, err := url.Parse(fmt.Sprintf("%s/%s.json", c.baseURL, endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	reqURL.RawQuery = params.Encode()

	c.log.DebugContext(ctx, "Geoclient request", "endpoint", string(endpoint), "url", reqURL.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &RemoteError{Timeout: true}
		}
		return nil, fmt.Errorf("failed to execute lookup request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.log.ErrorContext(ctx, "Geoclient API error", "status", resp.StatusCode, "body", string(body))
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	payload, err := decodeObject(body)
	if err != nil {
		c.log.ErrorContext(ctx, "Failed to parse Geoclient response", "error", err, "body", string(body))
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return extractRecord(payload, endpoint)
}

// extractRecord locates the result object within the response envelope.
// The v1 API nests the attributes under a key named after the endpoint;
// search-style responses nest candidates under a "results" list, of which
// the first is taken. An absent key or empty list means no match.
func extractRecord(payload map[string]any, endpoint Endpoint) (Record, error) {
	switch value := payload[string(endpoint)].(type) {
	case map[string]any:
		return Record(value), nil
	case []any:
		return firstRecord(value)
	}

	if results, ok := payload["results"].([]any); ok {
		return firstRecord(results)
	}

	return nil, ErrNoMatch
}

// firstRecord takes the first candidate of a result list. Multiple candidates
// are deterministically reduced to the first one.
func firstRecord(items []any) (Record, error) {
	if len(items) == 0 {
		return nil, ErrNoMatch
	}
	obj, ok := items[0].(map[string]any)
	if !ok {
		return nil, ErrNoMatch
	}
	if response, ok := obj["response"].(map[string]any); ok {
		return Record(response), nil
	}
	return Record(obj), nil
}

// DecodeRecord parses a stored result object, keeping numbers as written.
func DecodeRecord(payload []byte) (Record, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}
	return Record(obj), nil
}

func decodeObject(data []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var obj map[string]any
	if err := decoder.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to decode geoclient response: %w", err)
	}
	return obj, nil
}

// Field resolves a response attribute, descending nested objects on dots,
// and renders it as a string. The second return is false when the attribute
// is absent or null.
func (r Record) Field(path string) (string, bool) {
	var current any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = obj[part]
		if !ok {
			return "", false
		}
	}
	return renderValue(current)
}

func renderValue(value any) (string, bool) {
	switch val := value.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
