package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ListShorts returns one page of the user's shorts, optionally filtered by status.
func (c *HTTPClient) ListShorts(ctx context.Context, page int, status string) ([]Short, error) {
	q := pageQuery(page)
	if status != "" {
		q.Set("status", status)
	}
	var out shortPage
	if err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/shorts/",
		query:  q,
		auth:   true,
	}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ShortsByVideo returns the shorts generated so far for one video.
func (c *HTTPClient) ShortsByVideo(ctx context.Context, videoID ID, page int) ([]Short, error) {
	q := pageQuery(page)
	q.Set("video_id", videoID.String())
	var out shortsByVideoPage
	if err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/shorts/by_video/",
		query:  q,
		auth:   true,
	}, &out); err != nil {
		return nil, err
	}
	return out.Shorts, nil
}

// GetShort returns one short.
func (c *HTTPClient) GetShort(ctx context.Context, id ID) (*Short, error) {
	var out Short
	if err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/shorts/" + url.PathEscape(id.String()) + "/",
		auth:   true,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteShort removes one short.
func (c *HTTPClient) DeleteShort(ctx context.Context, id ID) error {
	return c.do(ctx, apiRequest{
		method: http.MethodDelete,
		path:   "/shorts/" + url.PathEscape(id.String()) + "/",
		auth:   true,
	}, nil)
}

// Download streams fileURL into w. Media URLs usually point at a CDN, so
// the token is only attached when the URL is under the API root.
func (c *HTTPClient) Download(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	if fileURL == "" {
		return 0, fmt.Errorf("download: empty url")
	}
	u, err := url.Parse(fileURL)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	if !u.IsAbs() {
		base, err := url.Parse(c.baseURL)
		if err != nil {
			return 0, fmt.Errorf("download: %w", err)
		}
		u = base.ResolveReference(u)
	}
	target := u.String()

	resp, cancel, err := c.send(ctx, apiRequest{
		method:  http.MethodGet,
		path:    target,
		auth:    c.isAPIURL(target),
		timeout: c.uploadTimeout,
	})
	if err != nil {
		return 0, err
	}
	defer cancel()
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", target, err)
	}
	return n, nil
}

func (c *HTTPClient) isAPIURL(target string) bool {
	return strings.HasPrefix(target, c.baseURL+"/")
}
