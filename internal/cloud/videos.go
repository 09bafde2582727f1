package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// UploadFile describes the video to send. Open is called once per upload.
type UploadFile struct {
	Name      string
	MediaType string
	Open      func() (io.ReadCloser, error)
}

// UploadVideo posts the file as multipart form data (file_name, video_file).
// The body is streamed so large videos are never buffered in memory. Uploads
// are not retried.
func (c *HTTPClient) UploadVideo(ctx context.Context, file UploadFile) (*UploadResponse, error) {
	if file.Open == nil {
		return nil, fmt.Errorf("upload %q: no file opener", file.Name)
	}
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", file.Name, err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer src.Close()
		pw.CloseWithError(writeUploadForm(mw, file, src))
	}()

	resp, cancel, err := c.send(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/videos/",
		body:        pr,
		contentType: mw.FormDataContentType(),
		auth:        true,
		timeout:     c.uploadTimeout,
	})
	// Unblocks the writer goroutine if the request ended early.
	pr.Close()
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	var out UploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	c.logger.Info("video uploaded", "file_name", file.Name, "video_id", out.Identifier().String())
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, file UploadFile, src io.Reader) error {
	if err := mw.WriteField("file_name", file.Name); err != nil {
		return err
	}
	mediaType := file.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video_file"; filename="%s"`, escapeQuotes(file.Name)))
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// ListVideos returns one page of the user's videos. Page numbers start at 1.
func (c *HTTPClient) ListVideos(ctx context.Context, page int) ([]Video, error) {
	var out videoPage
	if err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/videos/",
		query:  pageQuery(page),
		auth:   true,
	}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// RenameVideo changes the display name of a video.
func (c *HTTPClient) RenameVideo(ctx context.Context, id ID, fileName string) (*Video, error) {
	body, err := jsonBody(map[string]string{"file_name": fileName})
	if err != nil {
		return nil, err
	}
	var out Video
	if err := c.do(ctx, apiRequest{
		method:      http.MethodPatch,
		path:        "/videos/" + url.PathEscape(id.String()) + "/",
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
		out.FileName = fileName
	}
	return &out, nil
}

// DeleteVideo removes a video and, on the backend, its shorts.
func (c *HTTPClient) DeleteVideo(ctx context.Context, id ID) error {
	return c.do(ctx, apiRequest{
		method: http.MethodDelete,
		path:   "/videos/" + url.PathEscape(id.String()) + "/",
		auth:   true,
	}, nil)
}

// VideoStatus returns the processing status of a video.
func (c *HTTPClient) VideoStatus(ctx context.Context, id ID) (*VideoStatus, error) {
	var out VideoStatus
	if err := c.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/videos/" + url.PathEscape(id.String()) + "/status/",
		auth:   true,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
