package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// newTestClient points a Client at a test server.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewClient("paradedb/paradedb",
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithToken("test-token"),
	)
	return c, server
}

// writeTestArtifact creates a throwaway .deb file and returns its path.
func writeTestArtifact(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("deb-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExists(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected bool
	}{
		{"published", http.StatusOK, true},
		{"not found", http.StatusNotFound, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"rate limited", http.StatusForbidden, false},
		{"server error", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMethod, gotPath, gotAuth string
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}))

			exists, err := c.Exists(context.Background(), "pgvector-v0.5.1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exists != tt.expected {
				t.Errorf("Exists() = %v, want %v", exists, tt.expected)
			}
			if gotMethod != http.MethodHead {
				t.Errorf("method = %s, want HEAD", gotMethod)
			}
			if want := "/repos/paradedb/paradedb/releases/tags/pgvector-v0.5.1"; gotPath != want {
				t.Errorf("path = %s, want %s", gotPath, want)
			}
			if gotAuth != "token test-token" {
				t.Errorf("Authorization = %q, want the configured token", gotAuth)
			}
		})
	}
}

func TestExistsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	c := NewClient("paradedb/paradedb", WithBaseURL(server.URL))
	exists, err := c.Exists(context.Background(), "pgvector-v0.5.1")
	if err == nil {
		t.Fatal("expected a transport error, got nil")
	}
	if exists {
		t.Error("transport error must not report the release as published")
	}
}

func TestCreateRelease(t *testing.T) {
	var gotBody Release
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/paradedb/paradedb/releases" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "token test-token" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 7, "upload_url": "https://uploads.example.com/repos/o/r/releases/7/assets{?name,label}", "html_url": "https://example.com/rel"}`)
	}))

	created, err := c.CreateRelease(context.Background(), Release{
		TagName: "pgvector-v0.5.1",
		Name:    "pgvector v0.5.1",
		Body:    "Prebuilt pgvector 0.5.1.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != 7 {
		t.Errorf("ID = %d, want 7", created.ID)
	}
	if gotBody.TagName != "pgvector-v0.5.1" {
		t.Errorf("tag_name sent = %q", gotBody.TagName)
	}
}

func TestCreateReleaseFailure(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"validation failed", http.StatusUnprocessableEntity, `{"message":"Validation Failed"}`},
		{"server error", http.StatusInternalServerError, ``},
		{"malformed body", http.StatusCreated, `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.payload)
			}))

			_, err := c.CreateRelease(context.Background(), Release{TagName: "postgis-v3.3.2"})
			if !errors.Is(err, ErrReleaseCreate) {
				t.Errorf("error = %v, want ErrReleaseCreate", err)
			}
		})
	}
}

func TestUploadAsset(t *testing.T) {
	var gotName, gotContentType string
	var gotBytes []byte
	c, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uploads/7/assets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotName = r.URL.Query().Get("name")
		gotContentType = r.Header.Get("Content-Type")
		gotBytes, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"state":"uploaded"}`)
	}))

	artifact := writeTestArtifact(t, "pgvector-v0.5.1-pg15-amd64-linux-gnu.deb")
	uploadURL := server.URL + "/uploads/7/assets{?name,label}"
	err := c.UploadAsset(context.Background(), uploadURL, filepath.Base(artifact), artifact, "application/vnd.debian.binary-package")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotName != "pgvector-v0.5.1-pg15-amd64-linux-gnu.deb" {
		t.Errorf("asset name = %q", gotName)
	}
	if gotContentType != "application/vnd.debian.binary-package" {
		t.Errorf("content type = %q", gotContentType)
	}
	if string(gotBytes) != "deb-bytes" {
		t.Errorf("uploaded body = %q", gotBytes)
	}
}

func TestUploadAssetFailure(t *testing.T) {
	c, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	artifact := writeTestArtifact(t, "postgis-v3.3.2-pg15-amd64-linux-gnu.deb")
	err := c.UploadAsset(context.Background(), server.URL+"/uploads/1/assets", "a.deb", artifact, "application/vnd.debian.binary-package")
	if !errors.Is(err, ErrAssetUpload) {
		t.Errorf("error = %v, want ErrAssetUpload", err)
	}
}

func TestPublish(t *testing.T) {
	var uploads int
	var mux http.ServeMux
	var server *httptest.Server
	mux.HandleFunc("POST /repos/paradedb/paradedb/releases", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id": 1, "upload_url": %q, "html_url": "https://example.com/rel"}`,
			server.URL+"/uploads/1/assets{?name,label}")
	})
	mux.HandleFunc("POST /uploads/1/assets", func(w http.ResponseWriter, r *http.Request) {
		uploads++
		if got := r.URL.Query().Get("name"); got != "pgvector-v0.5.1-pg15-amd64-linux-gnu.deb" {
			t.Errorf("asset name = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
	})
	server = httptest.NewServer(&mux)
	t.Cleanup(server.Close)

	c := NewClient("paradedb/paradedb", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	artifact := writeTestArtifact(t, "pgvector-v0.5.1-pg15-amd64-linux-gnu.deb")

	created, err := c.Publish(context.Background(), Release{TagName: "pgvector-v0.5.1"}, artifact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uploads != 1 {
		t.Errorf("uploads = %d, want 1", uploads)
	}
	if created.HTMLURL != "https://example.com/rel" {
		t.Errorf("HTMLURL = %q", created.HTMLURL)
	}
}

func TestPublishMissingUploadURL(t *testing.T) {
	var uploads int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/paradedb/paradedb/releases" {
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id": 2, "html_url": "https://example.com/rel"}`)
			return
		}
		uploads++
		w.WriteHeader(http.StatusCreated)
	}))

	artifact := writeTestArtifact(t, "pg_cron-v1.6.0-pg15-amd64-linux-gnu.deb")
	_, err := c.Publish(context.Background(), Release{TagName: "pg_cron-v1.6.0"}, artifact)
	if !errors.Is(err, ErrMissingUploadURL) {
		t.Fatalf("error = %v, want ErrMissingUploadURL", err)
	}
	if uploads != 0 {
		t.Errorf("uploads = %d, want 0 (no upload after a missing endpoint)", uploads)
	}
}

func TestExpandUploadURL(t *testing.T) {
	tests := []struct {
		name      string
		uploadURL string
		asset     string
		expected  string
		wantErr   bool
	}{
		{
			"template suffix stripped",
			"https://uploads.example.com/repos/o/r/releases/1/assets{?name,label}",
			"x.deb",
			"https://uploads.example.com/repos/o/r/releases/1/assets?name=x.deb",
			false,
		},
		{
			"plain url",
			"https://uploads.example.com/assets",
			"y.deb",
			"https://uploads.example.com/assets?name=y.deb",
			false,
		},
		{"empty", "", "z.deb", "", true},
		{"template only", "{?name,label}", "z.deb", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandUploadURL(tt.uploadURL, tt.asset)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingUploadURL) {
					t.Errorf("error = %v, want ErrMissingUploadURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expandUploadURL() = %q, want %q", got, tt.expected)
			}
		})
	}
}
