package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retrato-ai/retrato/internal/config"
)

// Service is the external image-generation call. Exactly one implementation
// talks HTTP; tests swap in fakes.
type Service interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Request carries everything one generation attempt needs. SourceURL is a
// time-limited reference to the uploaded photo, produced by the object store.
type Request struct {
	SourceURL string `json:"sourceUrl"`
	Preset    string `json:"preset"`
	Prompt    string `json:"prompt"`
}

// Result is the transformed image as returned by the provider.
type Result struct {
	Data     []byte
	MimeType string
}

type wireRequest struct {
	Model     string `json:"model"`
	SourceURL string `json:"source_url"`
	Preset    string `json:"preset"`
	Prompt    string `json:"prompt,omitempty"`
}

type wireResponse struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client calls the generation provider over HTTP. The http.Client is injected
// and created once at process start; per-attempt deadlines come in through the
// context.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewClient(cfg *config.Config, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.Service.Generation.URL, "/"),
		apiKey:  cfg.Service.Generation.APIKey,
		model:   cfg.Service.Generation.Model,
		client:  client,
	}
}

func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	logger := zap.S().Named("generation")
	reqID := uuid.NewString()
	start := time.Now()

	body, err := json.Marshal(wireRequest{
		Model:     c.model,
		SourceURL: req.SourceURL,
		Preset:    req.Preset,
		Prompt:    req.Prompt,
	})
	if err != nil {
		return nil, WrapError(ClassificationAPIError, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transformations", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(ClassificationAPIError, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger.Debugw("generation request", "req_id", reqID, "preset", req.Preset, "model", c.model)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, WrapError(ClassificationTimeout, "generation call timed out", err)
		}
		logger.Errorw("generation request failed", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, WrapError(ClassificationAPIError, "generation call failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(ClassificationAPIError, "read response", err)
	}

	logger.Debugw("generation response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, classifyHTTPFailure(resp.StatusCode, raw)
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, WrapError(ClassificationAPIError, "decode response", err)
	}
	if wire.Data == "" {
		return nil, NewError(ClassificationAPIError, "provider returned no image data")
	}

	data, err := base64.StdEncoding.DecodeString(wire.Data)
	if err != nil {
		return nil, WrapError(ClassificationAPIError, "decode image payload", err)
	}

	mimeType := wire.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	return &Result{Data: data, MimeType: mimeType}, nil
}

// classifyHTTPFailure maps a provider failure onto the error taxonomy. The
// provider's own error code wins when it names a known condition; the HTTP
// status decides otherwise.
func classifyHTTPFailure(status int, raw []byte) *Error {
	var wire wireResponse
	message := fmt.Sprintf("provider returned status %d", status)
	if err := json.Unmarshal(raw, &wire); err == nil && wire.Error != nil {
		if wire.Error.Message != "" {
			message = wire.Error.Message
		}
		switch wire.Error.Code {
		case "content_policy_violation":
			return NewError(ClassificationContentPolicy, message)
		case "invalid_image":
			return NewError(ClassificationInvalidImage, message)
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return NewError(ClassificationRateLimited, message)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(ClassificationTimeout, message)
	case status == http.StatusUnprocessableEntity:
		return NewError(ClassificationContentPolicy, message)
	case status == http.StatusBadRequest || status == http.StatusUnsupportedMediaType:
		return NewError(ClassificationInvalidImage, message)
	default:
		return NewError(ClassificationAPIError, message)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
