package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"oasisrun/internal/model"
)

func keysHandler(fail func(n int64) bool) http.Handler {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /get_keys", func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if fail != nil && fail(n) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := map[string]any{
			"status": "success",
			"items": []model.KeyRecord{
				{LocID: 10, PerilID: 1, CoverageID: 1, AreaPerilID: 54, VulnerabilityID: 7, Status: model.KeyStatusSuccess},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func exposuresFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exposures.csv")
	if err := os.WriteFile(path, []byte("loc_id\n10\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHealthCheck_SucceedsAfterRetries(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, RetryDelay: time.Millisecond}
	if err := c.HealthCheck(context.Background(), 5); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestHealthCheck_HonorsAttemptBound(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, RetryDelay: time.Millisecond}
	if err := c.HealthCheck(context.Background(), 4); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts.Load() != 4 {
		t.Errorf("attempts = %d, want 4", attempts.Load())
	}
}

func TestGetKeys(t *testing.T) {
	srv := httptest.NewServer(keysHandler(nil))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	items, err := c.GetKeys(context.Background(), exposuresFile(t))
	if err != nil {
		t.Fatalf("GetKeys returned error: %v", err)
	}
	if len(items) != 1 || items[0].AreaPerilID != 54 {
		t.Errorf("items = %+v", items)
	}
}

func TestRunBatch(t *testing.T) {
	srv := httptest.NewServer(keysHandler(nil))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	counters, err := c.RunBatch(context.Background(), BatchOptions{
		Analyses:            8,
		Workers:             3,
		SourceExposuresPath: exposuresFile(t),
		WorkDir:             t.TempDir(),
	})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}
	if counters.Completed() != 8 || counters.Failed() != 0 {
		t.Errorf("completed = %d, failed = %d, want 8/0", counters.Completed(), counters.Failed())
	}
}

func TestRunBatch_IsolatesFailures(t *testing.T) {
	// Every other request fails; siblings must still complete.
	srv := httptest.NewServer(keysHandler(func(n int64) bool { return n%2 == 0 }))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	counters, err := c.RunBatch(context.Background(), BatchOptions{
		Analyses:            6,
		Workers:             2,
		SourceExposuresPath: exposuresFile(t),
		WorkDir:             t.TempDir(),
	})
	if err != nil {
		t.Fatalf("RunBatch returned error: %v", err)
	}
	if counters.Completed() != 3 || counters.Failed() != 3 {
		t.Errorf("completed = %d, failed = %d, want 3/3", counters.Completed(), counters.Failed())
	}
	if counters.Completed()+counters.Failed() != 6 {
		t.Error("tally does not cover every analysis")
	}
}

func TestRunBatch_WritesResults(t *testing.T) {
	srv := httptest.NewServer(keysHandler(nil))
	defer srv.Close()

	work := t.TempDir()
	c := &Client{BaseURL: srv.URL}
	if _, err := c.RunBatch(context.Background(), BatchOptions{
		Analyses:            2,
		Workers:             2,
		SourceExposuresPath: exposuresFile(t),
		WorkDir:             work,
	}); err != nil {
		t.Fatal(err)
	}

	for _, n := range []string{"analysis_1", "analysis_2"} {
		if _, err := os.Stat(filepath.Join(work, n, "keys.json")); err != nil {
			t.Errorf("missing result for %s: %v", n, err)
		}
	}
}
