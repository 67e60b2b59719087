// Package client is a typed HTTP client for the biomatch API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// ErrAPI is wrapped by every non-2xx response.
var ErrAPI = errors.New("api error")

// APIError is a decoded error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap lets callers match ErrAPI.
func (e *APIError) Unwrap() error { return ErrAPI }

// Identity mirrors the API identity object.
type Identity struct {
	IdentityID         int64     `json:"identity_id"`
	RegistrationNumber string    `json:"registration_number"`
	Name               string    `json:"name"`
	CreatedAt          time.Time `json:"created_at"`
	Message            string    `json:"message,omitempty"`
}

// Verification mirrors the POST /verify response. Scores are 0-100.
type Verification struct {
	AttemptID  string    `json:"attempt_id"`
	Matched    bool      `json:"matched"`
	EyeScore   float64   `json:"eye_score"`
	ThumbScore float64   `json:"thumb_score"`
	TotalScore float64   `json:"total_score"`
	Confidence string    `json:"confidence,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Identity   *Identity `json:"identity,omitempty"`
	Message    string    `json:"message"`
	Recorded   bool      `json:"recorded"`
}

// Attendance mirrors one attendance record. Scores are 0-100.
type Attendance struct {
	ID         int64     `json:"id"`
	AttemptID  string    `json:"attempt_id"`
	IdentityID *int64    `json:"identity_id,omitempty"`
	EyeScore   float64   `json:"eye_score"`
	ThumbScore float64   `json:"thumb_score"`
	Status     string    `json:"status"`
	Method     string    `json:"method"`
	Timestamp  time.Time `json:"timestamp"`
}

// Client wraps http.Client with the API routes.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Health checks that the server answers GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Code: "unhealthy", Message: resp.Status}
	}
	return nil
}

// Enroll registers a new identity. Images are base64 or data URIs.
func (c *Client) Enroll(ctx context.Context, regNo, name, eyeImage, thumbImage string) (Identity, error) {
	var out Identity
	err := c.do(ctx, http.MethodPost, "/enroll", map[string]string{
		"registration_number": regNo,
		"name":                name,
		"eye_image":           eyeImage,
		"thumb_image":         thumbImage,
	}, &out)
	return out, err
}

// Reenroll replaces both templates of an identity.
func (c *Client) Reenroll(ctx context.Context, id int64, eyeImage, thumbImage string) (Identity, error) {
	var out Identity
	path := "/identities/" + strconv.FormatInt(id, 10) + "/templates"
	err := c.do(ctx, http.MethodPut, path, map[string]string{
		"eye_image":   eyeImage,
		"thumb_image": thumbImage,
	}, &out)
	return out, err
}

// Identities lists enrolled identities.
func (c *Client) Identities(ctx context.Context) ([]Identity, error) {
	var out struct {
		Identities []Identity `json:"identities"`
	}
	err := c.do(ctx, http.MethodGet, "/identities", nil, &out)
	return out.Identities, err
}

// Verify submits one attempt. attemptID may be empty.
func (c *Client) Verify(ctx context.Context, attemptID, eyeImage, thumbImage string) (Verification, error) {
	var out Verification
	err := c.do(ctx, http.MethodPost, "/verify", map[string]string{
		"attempt_id":  attemptID,
		"eye_image":   eyeImage,
		"thumb_image": thumbImage,
	}, &out)
	return out, err
}

// Attendance returns up to limit recent records.
func (c *Client) Attendance(ctx context.Context, limit int) ([]Attendance, error) {
	var out []Attendance
	err := c.do(ctx, http.MethodGet, "/attendance?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

// Threshold reads the base match threshold.
func (c *Client) Threshold(ctx context.Context) (float64, error) {
	var out struct {
		Threshold float64 `json:"threshold"`
	}
	err := c.do(ctx, http.MethodGet, "/settings/threshold", nil, &out)
	return out.Threshold, err
}

// SetThreshold updates the base match threshold.
func (c *Client) SetThreshold(ctx context.Context, v float64) error {
	return c.do(ctx, http.MethodPut, "/settings/threshold", map[string]float64{"threshold": v}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
