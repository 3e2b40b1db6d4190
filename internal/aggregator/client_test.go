package aggregator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liberrors "github.com/lepinkainen/libsearch/internal/errors"
	"github.com/lepinkainen/libsearch/internal/library"
	"github.com/lepinkainen/libsearch/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL+"/"), WithHTTPClient(server.Client()), WithRateLimiter(nil))
}

func TestSearchFreeText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "robot", r.URL.Query().Get("free"))
		assert.Equal(t, defaultRegion, r.URL.Query().Get("region"))
		assert.Empty(t, r.URL.Query().Get("title"))
		_, _ = w.Write([]byte(`{"uuid":"u1","version":1,"running":true,"count":5,
			"books":[{"library":"tokyo","id":"b1","title":"Robot"},{"library":"osaka","id":"b2","title":"Robot"}]}`))
	})

	snap, err := client.Search(context.Background(), library.FreeText("robot"))
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.UUID)
	assert.Equal(t, 1, snap.Version)
	assert.True(t, snap.Running)
	assert.Equal(t, 5, snap.Count)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, library.RecordKey{LibraryID: "osaka", ItemID: "b2"}, snap.Records[1].Key())
}

func TestSearchDetailAndISBNShapes(t *testing.T) {
	var got []map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		params := map[string]string{}
		for k := range r.URL.Query() {
			params[k] = r.URL.Query().Get(k)
		}
		got = append(got, params)
		_, _ = w.Write([]byte(`{"uuid":"u","running":false,"count":0,"books":[]}`))
	})

	_, err := client.Search(context.Background(), library.Detail(library.Filters{Title: "Go", NDC: "007"}))
	require.NoError(t, err)
	_, err = client.Search(context.Background(), library.ISBN("9784621300251"))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, map[string]string{"title": "Go", "ndc": "007", "region": defaultRegion}, got[0])
	assert.Equal(t, map[string]string{"isbn": "9784621300251", "region": defaultRegion}, got[1])
}

func TestSearchDefaultsVersionToOne(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uuid":"u1","running":true,"count":1,"books":[]}`))
	})

	snap, err := client.Search(context.Background(), library.FreeText("robot"))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
}

func TestSearchProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>oops</html>`},
		{name: "missing uuid", body: `{"running":true,"books":[]}`},
		{name: "missing running", body: `{"uuid":"u1","books":[]}`},
		{name: "wrong types", body: `{"uuid":"u1","running":"yes"}`},
		{name: "empty", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Search(context.Background(), library.FreeText("robot"))
			require.Error(t, err)
			assert.True(t, liberrors.IsProtocolError(err), "got %v", err)
		})
	}
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := client.Search(context.Background(), library.FreeText(""))
	require.Error(t, err)
	assert.True(t, liberrors.IsDecodeError(err))
}

func TestSearchStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.Search(context.Background(), library.FreeText("robot"))
	require.Error(t, err)
	assert.True(t, liberrors.IsNetworkError(err))
	assert.Contains(t, err.Error(), "unexpected status 502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestRateLimitedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Poll(context.Background(), "u1", 1)
	require.Error(t, err)
	assert.True(t, liberrors.IsNetworkError(err))
	assert.True(t, liberrors.IsRateLimitError(err))
	assert.Contains(t, err.Error(), "retry after 7s")
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	client := NewClient(WithHTTPClient(failingDoer{}), WithRateLimiter(nil))

	_, err := client.Search(context.Background(), library.FreeText("robot"))
	require.Error(t, err)
	assert.True(t, liberrors.IsNetworkError(err))

	_, err = client.Poll(context.Background(), "u1", 1)
	require.Error(t, err)
	assert.True(t, liberrors.IsNetworkError(err))
}

func TestPollDiff(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/polling", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("uuid"))
		assert.Equal(t, "2", r.URL.Query().Get("version"))
		assert.Equal(t, "1", r.URL.Query().Get("diff"))
		_, _ = w.Write([]byte(`{"version":3,"running":false,"count":5,
			"books_diff":{"insert":[{"library":"a","id":"b4"},{"library":"a","id":"b5"}],
			"delete":[{"library":"a","id":"b1"}]}}`))
	})

	diff, err := client.Poll(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.Equal(t, 3, diff.Version)
	assert.False(t, diff.Running)
	assert.Equal(t, 5, diff.Count)
	assert.Len(t, diff.Inserted, 2)
	assert.Equal(t, []library.RecordKey{{LibraryID: "a", ItemID: "b1"}}, diff.Removed)
}

func TestPollWithoutBooksDiffIsEmptyDiff(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":4,"running":false,"count":2}`))
	})

	diff, err := client.Poll(context.Background(), "u1", 3)
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.Empty(t, diff.Inserted)
	assert.False(t, diff.Running)
}

func TestPollNoUpdate(t *testing.T) {
	bodies := []string{"", "   ", "null", "{}", "not json", "[]", `{"version":`}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			diff, err := client.Poll(context.Background(), "u1", 1)
			require.NoError(t, err)
			assert.Nil(t, diff)
		})
	}
}

func TestPollProtocolError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"books_diff":{"insert":[]}}`))
	})

	_, err := client.Poll(context.Background(), "u1", 1)
	require.Error(t, err)
	assert.True(t, liberrors.IsProtocolError(err))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	client := NewClient(
		WithHTTPClient(failingDoer{}),
		WithRateLimiter(ratelimit.NewWithBurst("test", 1, 1)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Poll(ctx, "u1", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	client := NewClient(WithRegion("tokyo-pref"), WithBaseURL(""), WithHTTPClient(nil))
	assert.Equal(t, "tokyo-pref", client.Region())
	assert.Equal(t, defaultBaseURL, client.baseURL)
	assert.NotNil(t, client.httpClient)
}
