package pipeline

import (
	"fmt"
	"strings"
)

// Request names one extension to build and publish.
type Request struct {
	Name       string
	RawVersion string
	SourceURL  string
}

// ParseRequest parses a "name,version,source-url" command-line triple. The
// URL keeps any commas it contains.
func ParseRequest(arg string) (Request, error) {
	parts := strings.SplitN(arg, ",", 3)
	if len(parts) != 3 {
		return Request{}, fmt.Errorf("request %q must be name,version,source-url", arg)
	}
	req := Request{
		Name:       strings.TrimSpace(parts[0]),
		RawVersion: strings.TrimSpace(parts[1]),
		SourceURL:  strings.TrimSpace(parts[2]),
	}
	if req.Name == "" || req.RawVersion == "" || req.SourceURL == "" {
		return Request{}, fmt.Errorf("request %q has an empty field", arg)
	}
	return req, nil
}
