package builder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// download fetches the source archive into destPath.
func (b *Builder) download(ctx context.Context, sourceURL, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("User-Agent", "pgxpack")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return n, fmt.Errorf("writing archive: %w", err)
	}
	return n, nil
}
