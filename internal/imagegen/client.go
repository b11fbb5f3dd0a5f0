package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gibbonas/MemAgent/internal/config"
	"github.com/gibbonas/MemAgent/internal/memory"
	"github.com/gibbonas/MemAgent/internal/observability"
)

const defaultGenerateTimeout = 90 * time.Second

// Client talks to the image generation service. Prompt and zero or more
// reference image byte streams in, one artifact out. The service may fail
// transiently or deny for policy; policy denials surface as
// *memory.PolicyViolationError.
type Client struct {
	httpClient *http.Client
	cfg        config.ImageGenConfig
}

func NewClient(httpClient *http.Client, cfg config.ImageGenConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultGenerateTimeout}
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

// Result is one generated artifact.
type Result struct {
	ImageBytes []byte
	ImageURL   string
	MIMEType   string
}

type generateRequest struct {
	Model           string   `json:"model,omitempty"`
	Prompt          string   `json:"prompt"`
	ReferenceImages []string `json:"reference_images,omitempty"` // base64
}

type generateResponse struct {
	ImageBase64 string `json:"image_base64"`
	ImageURL    string `json:"image_url"`
	MIMEType    string `json:"mime_type"`
	Error       *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate produces one image for the prompt, guided by the reference bytes
// when present.
func (c *Client) Generate(ctx context.Context, prompt string, referenceImages [][]byte) (Result, error) {
	reqBody := generateRequest{Model: c.cfg.Model, Prompt: prompt}
	for _, img := range referenceImages {
		reqBody.ReferenceImages = append(reqBody.ReferenceImages, base64.StdEncoding.EncodeToString(img))
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/images:generate", bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read generation response: %w", err)
	}

	var parsed generateResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil && parsed.Error != nil {
		if isPolicyDenial(parsed.Error.Status, parsed.Error.Message) {
			return Result{}, &memory.PolicyViolationError{
				Violations: []string{"generation service denied the request"},
				Severity:   "high",
			}
		}
		return Result{}, fmt.Errorf("generation service error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("generation service returned %d", resp.StatusCode)
	}

	out := Result{ImageURL: parsed.ImageURL, MIMEType: parsed.MIMEType}
	if out.MIMEType == "" {
		out.MIMEType = "image/png"
	}
	if parsed.ImageBase64 != "" {
		raw, decErr := base64.StdEncoding.DecodeString(parsed.ImageBase64)
		if decErr != nil {
			return Result{}, fmt.Errorf("decode generated image: %w", decErr)
		}
		out.ImageBytes = raw
	}
	if len(out.ImageBytes) == 0 && out.ImageURL == "" {
		return Result{}, fmt.Errorf("generation service returned no artifact")
	}

	observability.LoggerFromContext(ctx).Info("image generated",
		"bytes", len(out.ImageBytes), "references", len(referenceImages))
	return out, nil
}

func isPolicyDenial(status, message string) bool {
	s := strings.ToLower(status + " " + message)
	for _, ind := range []string{"safety", "policy", "blocked", "prohibited"} {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}
