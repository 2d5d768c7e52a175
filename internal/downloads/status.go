package downloads

import (
	"context"
	"net/url"
	"strings"
)

// StatusKind tags a decoded status response
type StatusKind int

const (
	// StatusPending means the file is still being prepared
	StatusPending StatusKind = iota
	// StatusComplete means the file is ready at Status.URL
	StatusComplete
)

// Status is the decoded reply of the download status endpoint
type Status struct {
	Kind StatusKind
	URL  string
}

// Pending returns a pending status
func Pending() Status {
	return Status{Kind: StatusPending}
}

// Complete returns a complete status for the given file URL
func Complete(fileURL string) Status {
	return Status{Kind: StatusComplete, URL: fileURL}
}

// StatusChecker issues one status request for a download job
type StatusChecker interface {
	CheckStatus(ctx context.Context, apiURL string, filename string) (Status, error)
}

// urlParts splits a source URL into the status endpoint URL and the resource name.
// The status endpoint inserts a "download" segment after the API version segment:
// /v1/schedules/schedule_a/ -> /v1/download/schedules/schedule_a/ (resource "schedule_a").
func urlParts(sourceURL string) (apiURL string, resource string, err error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", "", err
	}

	segments := strings.Split(u.Path, "/")
	at := 2
	if at > len(segments) {
		at = len(segments)
	}
	spliced := make([]string, 0, len(segments)+1)
	spliced = append(spliced, segments[:at]...)
	spliced = append(spliced, "download")
	spliced = append(spliced, segments[at:]...)
	u.Path = strings.Join(spliced, "/")
	u.RawPath = ""

	for i := len(spliced) - 1; i >= 0; i-- {
		if spliced[i] != "" {
			resource = spliced[i]
			break
		}
	}

	return u.String(), resource, nil
}
