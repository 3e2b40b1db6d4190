package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const datasetteTimeout = 30 * time.Second

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// DatasetteClient implements the Store interface for remote Datasette instances
type DatasetteClient struct {
	baseURL  string
	apiToken string
	client   HTTPDoer
}

// NewDatasetteClient creates a new DatasetteClient instance
func NewDatasetteClient(baseURL, apiToken string) *DatasetteClient {
	return &DatasetteClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		client:   &http.Client{Timeout: datasetteTimeout},
	}
}

// WithHTTPClient replaces the HTTP client used for inserts.
func (c *DatasetteClient) WithHTTPClient(doer HTTPDoer) *DatasetteClient {
	if doer != nil {
		c.client = doer
	}
	return c
}

// Connect verifies the connection to the Datasette instance
func (c *DatasetteClient) Connect() error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL: %q", c.baseURL)
	}
	return nil
}

// CreateTable is a no-op remotely. The table must already exist on the
// Datasette instance.
func (c *DatasetteClient) CreateTable(schema string) error {
	return nil
}

// BatchInsert posts records to the Datasette write API
// (POST /<database>/<table>/-/insert). Rows with an existing primary key
// are replaced.
func (c *DatasetteClient) BatchInsert(database string, table string, records []map[string]any) error {
	if len(records) == 0 {
		return nil
	}

	// Construct the API endpoint URL
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path.Join(u.Path, database, table, "-/insert")

	payload := map[string]any{
		"rows":    records,
		"replace": true,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, u.String(), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if msg := apiErrorMessage(body); msg != "" {
			return fmt.Errorf("datasette insert failed with status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("datasette insert failed with status %d", resp.StatusCode)
	}

	return nil
}

// apiErrorMessage extracts the messages of a Datasette error body, which
// carries either an "errors" array or a single "error" string.
func apiErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	result := gjson.ParseBytes(body)

	var msgs []string
	for _, e := range result.Get("errors").Array() {
		msgs = append(msgs, e.String())
	}
	if msg := result.Get("error").String(); msg != "" {
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

// Close is a no-op for the HTTP client
func (c *DatasetteClient) Close() error {
	return nil
}
