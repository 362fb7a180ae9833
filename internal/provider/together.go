package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"imagegen/internal/models"
)

const (
	generationsPath = "/v1/images/generations"

	defaultTimeout          = 90 * time.Second
	defaultMaxResponseBytes = 32 << 20
	maxErrorBodyBytes       = 64 << 10
)

// TogetherClient calls a Together-compatible images endpoint.
type TogetherClient struct {
	baseURL          string
	apiKey           string
	maxResponseBytes int64
	userAgent        string
	httpClient       *http.Client
}

// Option customises a TogetherClient.
type Option func(*TogetherClient)

// WithHTTPClient replaces the default client, whose timeout comes from config.
func WithHTTPClient(c *http.Client) Option {
	return func(tc *TogetherClient) {
		tc.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(tc *TogetherClient) {
		tc.userAgent = ua
	}
}

// NewTogetherClient builds a client from the provider config.
func NewTogetherClient(cfg models.ProviderConfig, opts ...Option) *TogetherClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = models.DefaultProviderBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}

	c := &TogetherClient{
		baseURL:          baseURL,
		apiKey:           strings.TrimSpace(cfg.APIKey),
		maxResponseBytes: maxBytes,
		httpClient:       &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TogetherClient) Name() string { return "together" }

func (c *TogetherClient) Configured() bool { return c.apiKey != "" }

type generateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
}

type generateResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func newPayload(req *models.GenerateRequest) generateRequest {
	p := generateRequest{
		Model:          req.Model,
		Prompt:         req.Prompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		N:              1,
		ResponseFormat: "b64_json",
		NegativePrompt: req.NegativePrompt,
	}
	// -1 asks for a random seed, which the API does by omission.
	if req.Seed != nil && *req.Seed != models.MinSeed {
		seed := *req.Seed
		p.Seed = &seed
	}
	return p
}

// Generate posts one generation request and returns the decoded image.
func (c *TogetherClient) Generate(ctx context.Context, req *models.GenerateRequest) (*Image, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(newPayload(req))
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generationsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	slog.Debug("Requesting image generation",
		"model", req.Model,
		"width", req.Width,
		"height", req.Height,
		"steps", req.Steps)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, statusError(resp.StatusCode, errBody)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, &Error{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "reading response failed", Err: err}
	}
	if int64(len(raw)) > c.maxResponseBytes {
		return nil, &Error{Kind: KindBadResponse, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("response exceeds %d bytes", c.maxResponseBytes)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{Kind: KindBadResponse, StatusCode: resp.StatusCode, Message: "response is not valid JSON", Err: err}
	}
	if len(parsed.Data) == 0 || parsed.Data[0].B64JSON == "" {
		return nil, &Error{Kind: KindBadResponse, StatusCode: resp.StatusCode, Message: "no image data found in response"}
	}

	decoded, err := base64.StdEncoding.DecodeString(parsed.Data[0].B64JSON)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, StatusCode: resp.StatusCode, Message: "image data is not valid base64", Err: err}
	}

	img, err := normalize(decoded)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, StatusCode: resp.StatusCode, Message: "failed to process image data", Err: err}
	}
	img.Model = req.Model
	return img, nil
}

// normalize decodes PNG or JPEG bytes and returns them PNG encoded.
// PNG input is passed through unchanged.
func normalize(data []byte) (*Image, error) {
	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := decoded.Bounds()
	img := &Image{
		SourceFormat: format,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
	}

	if format == "png" {
		img.Data = data
		return img, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	img.Data = buf.Bytes()
	return img, nil
}

// statusError maps a non-2xx response to a provider Error.
func statusError(status int, body []byte) *Error {
	detail := upstreamMessage(body)

	switch status {
	case http.StatusUnauthorized:
		return &Error{Kind: KindUnauthorized, StatusCode: status,
			Message: "invalid API key, check TOGETHER_API_KEY"}
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, StatusCode: status,
			Message: "upstream rate limit exceeded, try again later"}
	case http.StatusBadRequest:
		if detail == "" {
			detail = "unknown error"
		}
		return &Error{Kind: KindInvalidRequest, StatusCode: status,
			Message: "invalid request: " + detail}
	default:
		msg := http.StatusText(status)
		if detail != "" {
			msg = msg + ": " + detail
		}
		return &Error{Kind: KindUpstream, StatusCode: status, Message: msg}
	}
}

// upstreamMessage extracts the error text from {"error": "..."} or
// {"error": {"message": "..."}} bodies.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Error, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}

var _ Provider = (*TogetherClient)(nil)

// IsRetryable reports whether a later identical call could succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransport, KindUpstream:
		return !errors.Is(err, context.Canceled)
	}
	return false
}
