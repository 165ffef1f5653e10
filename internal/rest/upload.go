package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Upload is the result of a media upload.
type Upload struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
}

// UploadImage posts an image file and returns its served URL.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	return c.upload(ctx, "/upload/image", filename, r)
}

// UploadAudio posts a voice recording and returns its served URL.
func (c *Client) UploadAudio(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	return c.upload(ctx, "/upload/audio", filename, r)
}

func (c *Client) upload(ctx context.Context, path, filename string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy upload body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	var out Upload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
