package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/codeconnect/collab/internal/protocol"
)

// Client talks to the server's REST endpoints: the one-shot room-state
// fetch and the file upload. Neither response is ordered relative to
// channel events; callers decide how late results apply.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchRoomState performs GET /api/room/{roomID}
func (c *Client) FetchRoomState(ctx context.Context, roomID string) (*protocol.RoomState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/room/"+roomID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("room state fetch: unexpected status %d", resp.StatusCode)
	}

	var state protocol.RoomState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("room state fetch: %w", err)
	}
	return &state, nil
}

// UploadFile performs a multipart POST /api/upload-file and returns the
// URL the server stored the file under
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-file", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload: unexpected status %d", resp.StatusCode)
	}

	var uploaded protocol.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return uploaded.FileURL, nil
}
