package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/heartreel/internal/store"
)

func TestAPI_ImageWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	backend := &fakeBackend{}
	srv := New(Config{Store: s, Backend: backend})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Add an image
	createBody := `{"url": "/images/1.jpg", "title": "first"}`
	resp, err := client.Post(ts.URL+"/api/images", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/images error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Title != "first" {
		t.Errorf("created title = %s, want first", created.Title)
	}

	// 2. List images
	resp, _ = client.Get(ts.URL + "/api/images")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/images status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listed struct {
		Images []struct {
			ID string `json:"id"`
		} `json:"images"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Images) != 1 || listed.Images[0].ID != created.ID {
		t.Fatalf("listed = %+v, want the created image", listed.Images)
	}

	// 3. Delete it
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/images/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 4. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/images/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()

	// Both changes rebuild the scene in the background.
	deadline := time.Now().Add(2 * time.Second)
	for backend.reloads.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := backend.reloads.Load(); got != 2 {
		t.Errorf("scene reloads = %d, want 2", got)
	}
}
