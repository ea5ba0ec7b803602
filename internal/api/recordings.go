package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"tutorcast/internal/pipeline"
)

// Recording fetches one recording by identifier.
func (c *Client) Recording(ctx context.Context, id string) (*Recording, error) {
	var payload struct {
		Recording Recording `json:"recording"`
	}
	path := "/recordings/" + url.PathEscape(id)
	if err := c.decode(ctx, http.MethodGet, path, nil, nil, "", "failed to fetch recording", &payload); err != nil {
		return nil, err
	}
	return &payload.Recording, nil
}

// ListOptions filters a recordings listing. Zero values are omitted from
// the query.
type ListOptions struct {
	Page   int
	Limit  int
	Status pipeline.Status
}

// ListRecordings fetches one page of recordings.
func (c *Client) ListRecordings(ctx context.Context, opts ListOptions) (*RecordingPage, error) {
	query := url.Values{}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Status != "" {
		query.Set("status", string(opts.Status))
	}

	var page RecordingPage
	if err := c.decode(ctx, http.MethodGet, "/recordings", query, nil, "", "failed to fetch recordings", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UploadRequest carries a recording upload: the video stream plus the
// captured interaction events and optional descriptive fields.
type UploadRequest struct {
	Video       io.Reader
	Filename    string
	Events      []InteractionEvent
	Title       string
	Description string
}

// UploadRecording submits a new recording as multipart form data. The video
// is streamed, not buffered. Uploads are single-shot: an expired credential
// fails the request rather than replaying a potentially large stream.
func (c *Client) UploadRecording(ctx context.Context, upload UploadRequest) (*UploadResponse, error) {
	if upload.Video == nil {
		return nil, fmt.Errorf("upload: video stream is required")
	}
	filename := strings.TrimSpace(upload.Filename)
	if filename == "" {
		filename = "recording.webm"
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, upload, filename))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/recordings", pr)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp, "upload failed")
	}

	var ack UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &ack, nil
}

func writeUploadForm(form *multipart.Writer, upload UploadRequest, filename string) error {
	part, err := form.CreateFormFile("video", filename)
	if err != nil {
		return fmt.Errorf("create video part: %w", err)
	}
	if _, err := io.Copy(part, upload.Video); err != nil {
		return fmt.Errorf("write video part: %w", err)
	}

	events := upload.Events
	if events == nil {
		events = []InteractionEvent{}
	}
	encoded, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	if err := form.WriteField("events", string(encoded)); err != nil {
		return fmt.Errorf("write events field: %w", err)
	}

	if upload.Title != "" {
		if err := form.WriteField("title", upload.Title); err != nil {
			return fmt.Errorf("write title field: %w", err)
		}
	}
	if upload.Description != "" {
		if err := form.WriteField("description", upload.Description); err != nil {
			return fmt.Errorf("write description field: %w", err)
		}
	}

	return form.Close()
}

// StartProcessing kicks off (or re-runs) the pipeline for a draft
// recording with the requested voiceover language.
func (c *Client) StartProcessing(ctx context.Context, id, lang string) (*ProcessResponse, error) {
	if _, err := language.Parse(lang); err != nil {
		return nil, fmt.Errorf("target language %q is not a valid locale: %w", lang, err)
	}

	body, err := json.Marshal(map[string]string{"language": lang})
	if err != nil {
		return nil, fmt.Errorf("encode process request: %w", err)
	}

	var ack ProcessResponse
	path := "/recordings/" + url.PathEscape(id) + "/process"
	if err := c.decode(ctx, http.MethodPost, path, nil, body, "application/json", "processing failed", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// DeleteRecording removes a recording and its artifacts.
func (c *Client) DeleteRecording(ctx context.Context, id string) error {
	path := "/recordings/" + url.PathEscape(id)
	return c.decode(ctx, http.MethodDelete, path, nil, nil, "", "delete failed", nil)
}

// DownloadRecording streams the final rendered video into w, returning the
// number of bytes written.
func (c *Client) DownloadRecording(ctx context.Context, id string, w io.Writer) (int64, error) {
	path := "/recordings/" + url.PathEscape(id) + "/download"
	resp, err := c.do(ctx, c.streamClient, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, decodeAPIError(resp, "download failed")
	}

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return written, fmt.Errorf("download recording: %w", err)
	}
	return written, nil
}

// StreamURL builds a token-bearing playback URL: the raw draft stream or
// the final rendered video.
func (c *Client) StreamURL(id string, draft bool) string {
	suffix := "/download"
	if draft {
		suffix = "/stream-raw"
	}
	var token string
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	return c.base + "/recordings/" + url.PathEscape(id) + suffix + "?token=" + url.QueryEscape(token)
}
