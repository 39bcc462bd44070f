package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/objectstore"
	"clipcast/platform"
)

// memStore is an in-memory object store.
type memStore struct {
	mu      sync.Mutex
	live    map[string]bool
	deleted int
}

func (m *memStore) Upload(ctx context.Context, path string) (*objectstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		m.live = make(map[string]bool)
	}
	name := objectstore.ObjectName("test/", path)
	m.live[name] = true
	return &objectstore.Object{Bucket: "b", Name: name, URL: objectstore.PublicURL("b", name)}, nil
}

func (m *memStore) Delete(ctx context.Context, obj *objectstore.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, obj.Name)
	m.deleted++
	return nil
}

// rejectingGraph accepts a reel container and then reports it failed.
func rejectingGraph(published *bool) http.Handler {
	var mu sync.Mutex
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/page-1" && r.Form.Get("fields") == "access_token":
			io.WriteString(w, `{"access_token":"page-token","id":"page-1"}`)
		case r.URL.Path == "/page-1" && r.Form.Get("fields") == "instagram_business_account":
			io.WriteString(w, `{"instagram_business_account":{"id":"ig-1"},"id":"page-1"}`)
		case r.URL.Path == "/ig-1/media":
			io.WriteString(w, `{"id":"container-1"}`)
		case r.URL.Path == "/container-1":
			json.NewEncoder(w).Encode(map[string]string{
				"status_code": "ERROR",
				"status":      "Error: video aspect ratio not supported",
			})
		case r.URL.Path == "/ig-1/media_publish":
			*published = true
			io.WriteString(w, `{"id":"media-1"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestRunInstagramProcessingErrorLeavesOthersPublished(t *testing.T) {
	var published bool
	srv := httptest.NewServer(rejectingGraph(&published))
	defer srv.Close()

	store := &memStore{}
	reel, err := platform.NewInstagram(platform.InstagramConfig{
		Credentials: config.InstagramCredentials{
			AppID:           "app",
			AppSecret:       "secret",
			PageID:          "page-1",
			AccessToken:     "user-token",
			GCPProjectID:    "p",
			GCPPrivateKeyID: "k",
			GCPPrivateKey:   "pk",
			GCPClientEmail:  "e@p",
			GCPClientID:     "1",
			Bucket:          "b",
		},
		PollInterval:      time.Millisecond,
		ProcessingTimeout: 2 * time.Second,
		GraphBase:         srv.URL,
	}, platform.Deps{Store: store})
	if err != nil {
		t.Fatalf("NewInstagram: %v", err)
	}

	others := []*stubAdapter{{name: platform.YouTube}, {name: platform.TikTok}, {name: platform.Twitter}}
	all := append(adapters(others), reel)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	o, err := New(all, Options{MaxWorkers: 4, Logger: quiet()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results, err := o.Run(context.Background(), path, common, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("results = %+v, want one per platform", results)
	}
	ig := results[string(platform.Instagram)]
	if ig.Success || ig.State != platform.Failed || !errors.Is(ig.Err, platform.ErrProcessing) {
		t.Errorf("instagram = %+v, want processing failure", ig)
	}
	if !strings.Contains(ig.Error, "aspect ratio") {
		t.Errorf("instagram error = %q, want platform detail", ig.Error)
	}
	if published {
		t.Error("failed container was published")
	}
	if len(store.live) != 0 || store.deleted != 1 {
		t.Errorf("temporary object not cleaned up: live=%d deleted=%d", len(store.live), store.deleted)
	}

	for _, s := range others {
		r := results[string(s.name)]
		if !r.Success || r.ID != string(s.name)+"-id" || r.Err != nil {
			t.Errorf("%s = %+v, want success", s.name, r)
		}
	}
	if got := results.Failed(); len(got) != 1 || got[0] != string(platform.Instagram) {
		t.Errorf("Failed() = %v", got)
	}
}
