package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	liberrors "github.com/lepinkainen/libsearch/internal/errors"
	"github.com/lepinkainen/libsearch/internal/library"
)

type searchResponse struct {
	UUID    string               `json:"uuid"`
	Version *int                 `json:"version"`
	Running *bool                `json:"running"`
	Count   int                  `json:"count"`
	Books   []library.BookRecord `json:"books"`
}

type pollResponse struct {
	Version   int  `json:"version"`
	Running   bool `json:"running"`
	Count     int  `json:"count"`
	BooksDiff struct {
		Insert []library.BookRecord `json:"insert"`
		Delete []library.RecordKey  `json:"delete"`
	} `json:"books_diff"`
}

// Search starts a session on the aggregator and returns its first snapshot.
// The three query modes map onto mutually exclusive request shapes.
func (c *Client) Search(ctx context.Context, q library.Query) (*library.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := library.EncodeValues(q)
	params.Set("region", c.region)
	endpoint := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, "search", endpoint)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, liberrors.NewProtocolError("search", "response is not valid JSON", nil)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, liberrors.NewProtocolError("search", "unexpected response shape", err)
	}
	if resp.UUID == "" {
		return nil, liberrors.NewProtocolError("search", "response has no session uuid", nil)
	}
	if resp.Running == nil {
		return nil, liberrors.NewProtocolError("search", "response has no running flag", nil)
	}

	version := 1
	if resp.Version != nil {
		version = *resp.Version
	}

	return &library.Snapshot{
		UUID:    resp.UUID,
		Version: version,
		Running: *resp.Running,
		Count:   resp.Count,
		Records: resp.Books,
	}, nil
}

// Poll asks for everything that arrived after version. A nil diff with a
// nil error means the aggregator had nothing new yet (empty or unparseable
// body); the caller should wait and poll again with the same version.
func (c *Client) Poll(ctx context.Context, uuid string, version int) (*library.DiffBatch, error) {
	params := url.Values{}
	params.Set("uuid", uuid)
	params.Set("version", strconv.Itoa(version))
	params.Set("diff", "1")
	endpoint := fmt.Sprintf("%s/polling?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, "polling", endpoint)
	if err != nil {
		return nil, err
	}

	if notReady(body) {
		return nil, nil
	}

	result := gjson.ParseBytes(body)
	if !result.Get("running").Exists() || !result.Get("version").Exists() {
		return nil, liberrors.NewProtocolError("polling", "response lacks running or version", nil)
	}

	var resp pollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, liberrors.NewProtocolError("polling", "unexpected response shape", err)
	}

	return &library.DiffBatch{
		Version:  resp.Version,
		Running:  resp.Running,
		Count:    resp.Count,
		Inserted: resp.BooksDiff.Insert,
		Removed:  resp.BooksDiff.Delete,
	}, nil
}

// notReady reports whether a polling body carries no update.
func notReady(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return true
	}
	result := gjson.ParseBytes(trimmed)
	if !result.IsObject() {
		return true
	}
	empty := true
	result.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}
