// Package provider talks to the landmark and keypoint inference sidecar.
//
// Images travel as base64 netpbm payloads: PPM for face captures and PGM for
// normalized fingerprint captures.
package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/biomatch/internal/adapters/imaging"
	"github.com/okian/biomatch/internal/domain/model"
	"github.com/okian/biomatch/internal/domain/signature"
	"github.com/okian/biomatch/pkg/logger"
	"github.com/okian/biomatch/pkg/metrics"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxResponse = 8 << 20

	landmarksPath = "/landmarks"
	keypointsPath = "/keypoints"
)

type landmarksRequest struct {
	Image string `json:"image"`
}

type landmarksResponse struct {
	Found     bool          `json:"found"`
	Landmarks []model.Point `json:"landmarks"`
}

type keypointsRequest struct {
	Image    string `json:"image"`
	MaxCount int    `json:"max_count"`
}

type keypointsResponse struct {
	Keypoints   []model.Keypoint `json:"keypoints"`
	Descriptors [][]byte         `json:"descriptors"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client implements signature.LandmarkProvider and signature.KeypointProvider
// over HTTP.
type Client struct {
	base        string
	http        *http.Client
	timeout     time.Duration
	maxResponse int64
	log         logger.Logger
}

var (
	_ signature.LandmarkProvider = (*Client)(nil)
	_ signature.KeypointProvider = (*Client)(nil)
)

// New returns a Client for the sidecar at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadBaseURL, baseURL)
	}
	c := &Client{
		base:        u.String(),
		http:        &http.Client{},
		timeout:     defaultTimeout,
		maxResponse: defaultMaxResponse,
		log:         logger.Get().Named("provider"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Landmarks returns the face mesh for img.
func (c *Client) Landmarks(ctx context.Context, img model.RawImage) (model.LandmarkSet, bool, error) {
	payload, err := imaging.EncodePPM(img)
	if err != nil {
		return nil, false, err
	}
	var resp landmarksResponse
	if err := c.call(ctx, landmarksPath, landmarksRequest{Image: base64.StdEncoding.EncodeToString(payload)}, &resp); err != nil {
		return nil, false, err
	}
	if !resp.Found {
		return nil, false, nil
	}
	return model.LandmarkSet(resp.Landmarks), true, nil
}

// Keypoints detects up to maxCount keypoints in img.
func (c *Client) Keypoints(ctx context.Context, img model.GrayImage, maxCount int) ([]model.Keypoint, [][]byte, error) {
	payload, err := imaging.EncodePGM(img)
	if err != nil {
		return nil, nil, err
	}
	var resp keypointsResponse
	req := keypointsRequest{Image: base64.StdEncoding.EncodeToString(payload), MaxCount: maxCount}
	if err := c.call(ctx, keypointsPath, req, &resp); err != nil {
		return nil, nil, err
	}
	if len(resp.Descriptors) > 0 && len(resp.Descriptors) != len(resp.Keypoints) {
		return nil, nil, fmt.Errorf("%w: %d descriptors for %d keypoints", ErrBadResponse, len(resp.Descriptors), len(resp.Keypoints))
	}
	return resp.Keypoints, resp.Descriptors, nil
}

func (c *Client) call(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordErrorByComponent("provider", "transport")
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	c.log.Debug(ctx, "provider call",
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Int64("duration_ms", time.Since(start).Milliseconds()))

	if resp.StatusCode >= http.StatusInternalServerError {
		metrics.RecordErrorByComponent("provider", "server")
		return fmt.Errorf("%w: status %d%s", ErrUnavailable, resp.StatusCode, reason(data))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d%s", ErrRequestFailed, resp.StatusCode, reason(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return nil
}

func reason(data []byte) string {
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return ": " + e.Error
	}
	return ""
}
