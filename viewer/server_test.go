package viewer_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hellman/wboxkit/viewer"
)

func TestRunsListsSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "run-1.snapshot.json"), []byte(`{"window":3}`), 0o644); err != nil {
		t.Fatal(err)
	}

	e := viewer.New(viewer.Options{Dir: dir})

	req := httptest.NewRequest(http.MethodGet, "/runs?wait=false", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /runs status = %d, want 200", rec.Code)
	}
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decoding /runs response: %v", err)
	}
	if len(names) != 1 || names[0] != "run-1" {
		t.Fatalf("GET /runs = %v, want [run-1]", names)
	}
}

func TestRunDetailServesSnapshotBody(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`{"window":7,"example":"2b7e151628aed2a6abf7158809cf4f3c"}`)
	if err := os.WriteFile(filepath.Join(dir, "run-a.snapshot.json"), body, 0o644); err != nil {
		t.Fatal(err)
	}

	e := viewer.New(viewer.Options{Dir: dir})

	req := httptest.NewRequest(http.MethodGet, "/runs/run-a", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /runs/run-a status = %d, want 200", rec.Code)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding snapshot body: %v", err)
	}
	if got["window"].(float64) != 7 {
		t.Fatalf("snapshot window = %v, want 7", got["window"])
	}
}

func TestRunDetailMissingSnapshotReturns404(t *testing.T) {
	dir := t.TempDir()
	e := viewer.New(viewer.Options{Dir: dir})

	req := httptest.NewRequest(http.MethodGet, "/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /runs/does-not-exist status = %d, want 404", rec.Code)
	}
}

// A late-arriving snapshot file unblocks an in-flight waiting /runs
// request instead of forcing it to the five-minute timeout.
func TestRunsWaitUnblocksOnNewSnapshot(t *testing.T) {
	dir := t.TempDir()
	e := viewer.New(viewer.Options{Dir: dir})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/runs?wait=true", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		done <- rec
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "run-b.snapshot.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case rec := <-done:
		if rec.Code != http.StatusOK {
			t.Fatalf("GET /runs?wait=true status = %d, want 200", rec.Code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("waiting /runs request did not unblock after a new snapshot was written")
	}
}
