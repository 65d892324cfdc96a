//go:build integration

package integration_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/pgxpack/pgxpack/internal/builder"
	"github.com/pgxpack/pgxpack/internal/pipeline"
	"github.com/pgxpack/pgxpack/internal/release"
)

const testRepo = "paradedb/paradedb"

// releaseHost emulates the release API surface the pipeline touches: tag
// existence checks, release creation, and asset upload.
type releaseHost struct {
	api *httptest.Server

	mu            sync.Mutex
	existing      map[string]bool
	releases      []releaseBody
	assets        []uploadedAsset
	omitUploadURL bool
}

type releaseBody struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Body    string `json:"body"`
}

type uploadedAsset struct {
	Name        string
	ContentType string
	Size        int
}

func newReleaseHost(t *testing.T) *releaseHost {
	t.Helper()

	h := &releaseHost{existing: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /repos/"+testRepo+"/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.existing[r.PathValue("tag")] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /repos/"+testRepo+"/releases", func(w http.ResponseWriter, r *http.Request) {
		var rel releaseBody
		if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		h.mu.Lock()
		h.releases = append(h.releases, rel)
		id := len(h.releases)
		omit := h.omitUploadURL
		h.mu.Unlock()

		resp := map[string]any{
			"id":       id,
			"html_url": "https://github.com/" + testRepo + "/releases/tag/" + rel.TagName,
		}
		if !omit {
			resp["upload_url"] = h.api.URL + "/uploads/releases/1/assets{?name,label}"
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /uploads/releases/1/assets", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		h.mu.Lock()
		h.assets = append(h.assets, uploadedAsset{
			Name:        r.URL.Query().Get("name"),
			ContentType: r.Header.Get("Content-Type"),
			Size:        len(body),
		})
		h.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"state":"uploaded"}`)
	})

	h.api = httptest.NewServer(mux)
	t.Cleanup(h.api.Close)
	return h
}

func (h *releaseHost) markPublished(tag string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.existing[tag] = true
}

func (h *releaseHost) releaseTags() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	tags := make([]string, 0, len(h.releases))
	for _, rel := range h.releases {
		tags = append(tags, rel.TagName)
	}
	return tags
}

func (h *releaseHost) assetNames() []string {
	names := make([]string, 0, len(h.assets))
	for _, a := range h.uploads() {
		names = append(names, a.Name)
	}
	return names
}

func (h *releaseHost) uploads() []uploadedAsset {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uploadedAsset(nil), h.assets...)
}

// sourceServer serves a synthetic source release archive for any request path.
func sourceServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// `GET /pgvector-0.5.1.tar.gz` serves an archive whose top-level
		// directory is pgvector-0.5.1, like GitHub's tag tarballs.
		topDir := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".tar.gz")
		archive := buildArchive(t, topDir, map[string]string{
			"Makefile":    "all:\n\t$(CC) -o ext ext.c\n",
			"ext.c":       "int main(void) { return 0; }\n",
			"sql/ext.sql": "CREATE FUNCTION noop() RETURNS void AS $$ $$ LANGUAGE sql;\n",
		})
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func buildArchive(t *testing.T, topDir string, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{
			Name:     topDir + "/" + name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("writing tar entry: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}
	return buf.Bytes()
}

// toolCall is one command the fake toolchain ran.
type toolCall struct {
	Dir  string
	Line string
}

// debRunner stands in for the build toolchain. It records every command and
// emulates checkinstall's one observable effect: a .deb in --pakdir.
type debRunner struct {
	mu    sync.Mutex
	calls []toolCall

	// failMakeIn fails the make step for scratch directories containing
	// this substring, to exercise per-request failure isolation.
	failMakeIn string
}

func (r *debRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, toolCall{
		Dir:  dir,
		Line: strings.Join(append([]string{name}, args...), " "),
	})
	r.mu.Unlock()

	if name == "make" && r.failMakeIn != "" && strings.Contains(dir, r.failMakeIn) {
		return errors.New("make: *** [all] Error 2")
	}

	if name == "checkinstall" {
		return r.fakeCheckinstall(args)
	}
	return nil
}

func (r *debRunner) fakeCheckinstall(args []string) error {
	values := map[string]string{}
	for _, arg := range args {
		if flag, value, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(flag, "--") {
			values[strings.TrimPrefix(flag, "--")] = value
		}
	}

	deb := fmt.Sprintf("%s_%s-%s_%s.deb",
		values["pkgname"], values["pkgversion"], values["pkgrelease"], values["pkgarch"])
	return os.WriteFile(filepath.Join(values["pakdir"], deb), []byte("!<arch>\ndeb-payload"), 0o644)
}

// callsIn returns the command lines run in directories containing substr.
func (r *debRunner) callsIn(substr string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lines []string
	for _, call := range r.calls {
		if strings.Contains(call.Dir, substr) {
			lines = append(lines, call.Line)
		}
	}
	return lines
}

func (r *debRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// newPublishPipeline wires the real packages together against the fake
// release host and toolchain runner.
func newPublishPipeline(t *testing.T, host *releaseHost, runner builder.Runner) *pipeline.Pipeline {
	t.Helper()

	client := release.NewClient(testRepo,
		release.WithBaseURL(host.api.URL),
		release.WithToken("integration-token"),
	)
	bld := builder.New(builder.Config{
		PGMajor:     15,
		Arch:        "amd64",
		ScratchRoot: t.TempDir(),
		Jobs:        2,
	},
		builder.WithRunner(runner),
		builder.WithLogger(log.New(io.Discard)),
	)
	return pipeline.New(client, bld, client, pipeline.WithLogger(log.New(io.Discard)))
}
