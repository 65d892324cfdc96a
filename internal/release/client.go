// Package release talks to the GitHub Releases API: it answers whether a
// release tag already exists and publishes new releases with a single .deb
// asset attached. The host is the system of record for "already published";
// pgxpack keeps no state of its own.
package release

import (
	"net/http"
	"time"
)

// Release is the request body for creating a release.
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Body    string `json:"body"`
}

// CreatedRelease is the subset of the creation response the pipeline needs.
// UploadURL arrives as a URI template ("…/assets{?name,label}").
type CreatedRelease struct {
	ID        int64  `json:"id"`
	UploadURL string `json:"upload_url"`
	HTMLURL   string `json:"html_url"`
}

// Client publishes extension releases to a single GitHub repository.
type Client struct {
	repo       string
	token      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(base string) Option {
	return func(cl *Client) {
		cl.baseURL = base
	}
}

// WithToken sets the bearer credential sent on every request.
func WithToken(token string) Option {
	return func(cl *Client) {
		cl.token = token
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// NewClient creates a Client for the given "owner/name" repository.
func NewClient(repo string, opts ...Option) *Client {
	c := &Client{
		repo:      repo,
		baseURL:   "https://api.github.com",
		userAgent: "pgxpack",
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Repo returns the "owner/name" repository this client publishes to.
func (c *Client) Repo() string {
	return c.repo
}
