package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// debContentType is the media type declared when uploading .deb assets.
const debContentType = "application/vnd.debian.binary-package"

// maxResponseBytes caps how much of an API response body is read.
const maxResponseBytes = 1 << 20

var (
	// ErrReleaseCreate reports a failed or undecodable release creation.
	ErrReleaseCreate = errors.New("release creation failed")
	// ErrMissingUploadURL reports a creation response without a usable
	// upload endpoint. No upload is attempted when this is returned.
	ErrMissingUploadURL = errors.New("release response missing upload endpoint")
	// ErrAssetUpload reports a failed asset upload.
	ErrAssetUpload = errors.New("asset upload failed")
)

// Exists reports whether a release with the given tag is already published.
// Any response status outside 2xx means "not published": the caller proceeds
// to build, and a duplicate-tag creation would fail loudly later. Only a
// transport-level failure returns an error.
func (c *Client) Exists(ctx context.Context, tag string) (bool, error) {
	u := fmt.Sprintf("%s/repos/%s/releases/tags/%s", c.baseURL, c.repo, url.PathEscape(tag))
	req, err := c.newRequest(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("checking release %s: %w", tag, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// CreateRelease creates a release for the given tag and returns what the
// host reported about it.
func (c *Client) CreateRelease(ctx context.Context, rel Release) (*CreatedRelease, error) {
	payload, err := json.Marshal(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrReleaseCreate, err)
	}

	u := fmt.Sprintf("%s/repos/%s/releases", c.baseURL, c.repo)
	req, err := c.newRequest(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReleaseCreate, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReleaseCreate, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrReleaseCreate, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: tag %s: status %d: %s", ErrReleaseCreate, rel.TagName, resp.StatusCode, snippet(body))
	}

	var created CreatedRelease
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("%w: parsing response JSON: %v", ErrReleaseCreate, err)
	}
	return &created, nil
}

// UploadAsset attaches a file to a previously created release. uploadURL is
// the endpoint reported by the creation response; a trailing URI-template
// suffix is stripped before the asset name is appended.
func (c *Client) UploadAsset(ctx context.Context, uploadURL, assetName, path, contentType string) error {
	endpoint, err := expandUploadURL(uploadURL, assetName)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrAssetUpload, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrAssetUpload, path, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssetUpload, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = info.Size()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAssetUpload, assetName, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: status %d: %s", ErrAssetUpload, assetName, resp.StatusCode, snippet(body))
	}
	return nil
}

// Publish creates the release and uploads the artifact as its single asset,
// named after the artifact file. A creation response without an upload
// endpoint fails before any upload request is made.
func (c *Client) Publish(ctx context.Context, rel Release, artifactPath string) (*CreatedRelease, error) {
	created, err := c.CreateRelease(ctx, rel)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(created.UploadURL) == "" {
		return nil, fmt.Errorf("%w: tag %s", ErrMissingUploadURL, rel.TagName)
	}

	assetName := filepath.Base(artifactPath)
	if err := c.UploadAsset(ctx, created.UploadURL, assetName, artifactPath, debContentType); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	return req, nil
}

// expandUploadURL strips the "{?name,label}" template suffix and appends the
// asset name as a query parameter.
func expandUploadURL(uploadURL, assetName string) (string, error) {
	if i := strings.Index(uploadURL, "{"); i >= 0 {
		uploadURL = uploadURL[:i]
	}
	u, err := url.Parse(uploadURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: unparsable value %q", ErrMissingUploadURL, uploadURL)
	}
	q := u.Query()
	q.Set("name", assetName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// snippet trims a response body for error messages.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
