package datastore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDatasetteClient_BatchInsert_Success(t *testing.T) {
	var gotPath, gotAuth string
	var payload struct {
		Rows    []map[string]any `json:"rows"`
		Replace bool             `json:"replace"`
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewDatasetteClient(ts.URL, "testtoken")
	if err := client.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	records := []map[string]any{{"library": "Tokyo", "item_id": "t1"}}
	if err := client.BatchInsert("libsearch", "library_holdings", records); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if gotPath != "/libsearch/library_holdings/-/insert" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer testtoken" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if len(payload.Rows) != 1 || payload.Rows[0]["item_id"] != "t1" {
		t.Errorf("unexpected payload %+v", payload.Rows)
	}
	if !payload.Replace {
		t.Error("expected replace to be set")
	}
}

func TestDatasetteClient_BatchInsert_APIError(t *testing.T) {
	// Mock server that returns 403 Forbidden with JSON error
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		if err := json.NewEncoder(w).Encode(map[string]any{"error": "forbidden"}); err != nil {
			t.Errorf("Failed to encode error response: %v", err)
		}
	}))
	defer ts.Close()

	client := NewDatasetteClient(ts.URL, "testtoken")
	if err := client.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	records := []map[string]any{{"foo": "bar"}}
	err := client.BatchInsert("libsearch", "test_table", records)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "status 403: forbidden") {
		t.Errorf("unexpected error %q", err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	tests := map[string]string{
		`{"ok":false,"errors":["Table not found: x","Bad row"]}`: "Table not found: x; Bad row",
		`{"error":"forbidden"}`:                                  "forbidden",
		`<html>Bad Gateway</html>`:                               "",
		``:                                                       "",
	}
	for body, want := range tests {
		if got := apiErrorMessage([]byte(body)); got != want {
			t.Errorf("apiErrorMessage(%q) = %q, want %q", body, got, want)
		}
	}
}

func TestDatasetteClient_Connect_InvalidURL(t *testing.T) {
	if err := NewDatasetteClient("not a url", "").Connect(); err == nil {
		t.Error("expected error for invalid base URL")
	}
}

func TestDatasetteClient_BatchInsert_Empty(t *testing.T) {
	client := NewDatasetteClient("http://127.0.0.1:1", "")
	if err := client.BatchInsert("libsearch", "t", nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}
