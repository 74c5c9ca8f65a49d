// Package genapi is a client for the remote image-generation service.
//
// The service offers two mutually exclusive progress contracts:
//  1. Streaming: POST /generate answers with newline-delimited `data:` JSON
//     frames carrying progress, the result image path, or an error.
//  2. Polling: POST /api/generate answers with a job id, and
//     GET /api/status/:jobId reports progress until the job finishes.
//
// It also lists LoRA add-ons (GET /api/loras) and previously generated
// images (GET /api/images).
package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/mando222/ai-image-gen/internal/jsonutil"
	"github.com/rs/zerolog/log"
)

const (
	// defaultTimeout bounds non-streaming calls. Streams are bounded only by
	// the caller's context.
	defaultTimeout = 30 * time.Second

	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"
)

// Client talks to one generation service instance.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces both underlying HTTP clients. Tests use this with
// httptest servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamClient = hc
	}
}

// WithTimeout sets the timeout applied to non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a client for the service at baseURL
// (e.g. "http://localhost:5000").
func NewClient(baseURL string, opts ...Option) *Client {
	transport := gzhttp.Transport(http.DefaultTransport)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Alive reports whether the service answers at its base URL.
func (c *Client) Alive(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", c.baseURL).Msg("Service liveness check failed")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// --- Streaming contract ---

// Stream starts a generation on POST /generate and returns a reader over the
// response frames. The caller must Close the reader.
func (c *Client) Stream(ctx context.Context, req *GenerateRequest) (*FrameReader, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/generate", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	log.Debug().
		Int("steps", req.Steps).
		Float64("guidance_scale", req.GuidanceScale).
		Float64("strength", req.Strength).
		Bool("init_image", req.InitImage != "").
		Str("requestId", httpReq.Header.Get(RequestIDHeader)).
		Msg("Starting streamed generation")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "POST /generate", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, errorFromResponse(resp)
	}
	return newFrameReader(resp.Body), nil
}

// --- Polling contract ---

// Submit queues a generation on POST /api/generate and returns its job id.
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (string, error) {
	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &ServiceError{StatusCode: http.StatusOK, Message: resp.Error}
	}
	if resp.JobID == "" {
		return "", &ServiceError{StatusCode: http.StatusOK, Message: "service returned no job id"}
	}
	log.Info().Str("jobId", resp.JobID).Str("modelType", req.ModelType).Int("loras", len(req.Loras)).Msg("Generation job submitted")
	return resp.JobID, nil
}

// Status returns the current state of a polled job.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/status/"+url.PathEscape(jobID), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// --- Catalog ---

// Loras lists the LoRA add-ons grouped by model speed tier.
func (c *Client) Loras(ctx context.Context) (*LoraGroups, error) {
	var groups LoraGroups
	if err := c.doJSON(ctx, http.MethodGet, "/api/loras", nil, &groups); err != nil {
		return nil, err
	}
	return &groups, nil
}

// Images lists the URLs of images the service already holds, in service order.
func (c *Client) Images(ctx context.Context) ([]string, error) {
	var urls []string
	if err := c.doJSON(ctx, http.MethodGet, "/api/images", nil, &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

// --- Internal helpers ---

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

// doJSON sends in (if non-nil) as JSON and decodes a success body into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	startTime := time.Now()
	log.Debug().Str("method", method).Str("path", path).Str("requestId", req.Header.Get(RequestIDHeader)).Msg("Service request")

	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Service response")
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	log.Debug().Int("statusCode", resp.StatusCode).Dur("duration", duration).Msg("Service response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read " + path, Err: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{What: path, Raw: string(raw), Err: err}
	}
	return nil
}

// errorFromResponse turns a non-success response into a ServiceError carrying
// the service's own message when it sent one.
func errorFromResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := jsonutil.ErrorMessage(string(raw))

	log.Error().
		Int("statusCode", resp.StatusCode).
		Str("errorMessage", msg).
		Str("body", truncate(string(raw), 200)).
		Msg("Service returned an error")

	return &ServiceError{StatusCode: resp.StatusCode, Message: msg}
}
