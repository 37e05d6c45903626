// Package strava talks to the Strava v3 API.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/templui/stravasync/internal/metrics"
)

const maxErrorBody = 2048

// RemoteError is returned for any non-2xx Strava response.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("strava %s returned status %d", e.Op, e.StatusCode)
}

// Client is a thin typed wrapper over the Strava REST API. Calls are bounded
// by the configured timeout and never retried.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		http:    httpClient,
	}
}

// Athlete returns the authenticated athlete.
func (c *Client) Athlete(ctx context.Context, token string) (*Athlete, error) {
	var athlete Athlete
	err := c.do(ctx, "get_athlete", http.MethodGet, "/athlete", token, nil, "", &athlete)
	if err != nil {
		return nil, err
	}
	return &athlete, nil
}

// ListActivities returns the most recent activities, newest first.
func (c *Client) ListActivities(ctx context.Context, token string, perPage int) ([]ActivitySummary, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))

	var out []ActivitySummary
	err := c.do(ctx, "list_activities", http.MethodGet, "/athlete/activities?"+q.Encode(), token, nil, "", &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetActivity(ctx context.Context, token string, id int64) (*ActivityDetail, error) {
	var out ActivityDetail
	err := c.do(ctx, "get_activity", http.MethodGet, fmt.Sprintf("/activities/%d", id), token, nil, "", &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListActivityPhotos(ctx context.Context, token string, id int64) ([]Photo, error) {
	q := url.Values{}
	q.Set("size", PreferredSize)
	q.Set("photo_sources", "true")

	var out []Photo
	err := c.do(ctx, "list_photos", http.MethodGet, fmt.Sprintf("/activities/%d/photos?%s", id, q.Encode()), token, nil, "", &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateActivity(ctx context.Context, token string, id int64, update ActivityUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	return c.do(ctx, "update_activity", http.MethodPut, fmt.Sprintf("/activities/%d", id), token,
		bytes.NewReader(body), "application/json", nil)
}

// UploadPhoto posts an image as multipart field "file".
func (c *Client) UploadPhoto(ctx context.Context, token string, activityID int64, filename string, r io.Reader) (*Photo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to buffer photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	var out Photo
	err = c.do(ctx, "upload_photo", http.MethodPost, fmt.Sprintf("/activities/%d/photos", activityID), token,
		&buf, mw.FormDataContentType(), &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetPrimaryPhoto(ctx context.Context, token string, activityID, photoID int64) error {
	body := []byte(`{"primary":true}`)
	return c.do(ctx, "set_primary_photo", http.MethodPut, fmt.Sprintf("/activities/%d/photos/%d", activityID, photoID), token,
		bytes.NewReader(body), "application/json", nil)
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body io.Reader, contentType string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(op, 0, time.Since(start))
		return fmt.Errorf("strava %s failed: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.RecordRemoteRequest(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
