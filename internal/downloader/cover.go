package downloader

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxCoverBytes = 10 << 20

// coverResolution matches the sizing suffix googleusercontent appends to
// image urls, e.g. "=w60-h60-l90-rj". Removing it yields the original image.
var coverResolution = regexp.MustCompile(`(=(-?([whl]\d+|rj))+)$`)

// MaxResCoverURL strips the sizing suffix from raw.
func MaxResCoverURL(raw string) string {
	return coverResolution.ReplaceAllString(raw, "")
}

// fetchCover downloads the cover image. Any failure yields nil so the track
// is still delivered, just without artwork.
func fetchCover(ctx context.Context, client *http.Client, raw string, maxRes bool, timeout time.Duration) ([]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if maxRes {
		raw = MaxResCoverURL(raw)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &coverError{reason: "status " + resp.Status}
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return nil, &coverError{reason: "content type " + resp.Header.Get("Content-Type")}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxCoverBytes {
		return nil, &coverError{reason: "image too large"}
	}
	return data, nil
}

type coverError struct {
	reason string
}

func (e *coverError) Error() string { return "cover rejected: " + e.reason }
