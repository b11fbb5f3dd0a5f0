package photos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gibbonas/MemAgent/internal/memory"
	"github.com/gibbonas/MemAgent/internal/observability"
)

// Client talks to the photo library service. It carries a request-scoped
// bearer token, so a Client must be constructed per call and never stored on
// anything long-lived.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	pickerBaseURL string
	token         string
}

func NewClient(httpClient *http.Client, baseURL, pickerBaseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(baseURL, "/"),
		pickerBaseURL: strings.TrimRight(pickerBaseURL, "/"),
		token:         token,
	}
}

type mediaItem struct {
	ID            string `json:"id"`
	BaseURL       string `json:"baseUrl"`
	Description   string `json:"description"`
	MediaMetadata struct {
		CreationTime string `json:"creationTime"`
	} `json:"mediaMetadata"`
}

type searchResponse struct {
	MediaItems []mediaItem `json:"mediaItems"`
}

// SearchByDate returns photos taken inside [start, end], newest first as the
// service orders them. Metadata and URLs only, never image bytes.
func (c *Client) SearchByDate(ctx context.Context, start, end time.Time, max int) ([]memory.ReferencePhoto, error) {
	body := map[string]any{
		"filters": map[string]any{
			"dateFilter": map[string]any{
				"ranges": []map[string]any{{
					"startDate": dateParts(start),
					"endDate":   dateParts(end),
				}},
			},
			"mediaTypeFilter": map[string]any{"mediaTypes": []string{"PHOTO"}},
		},
		"pageSize": max,
	}
	return c.search(ctx, body, max, 0.8)
}

// SearchByContent returns photos matching content categories such as PEOPLE
// or PETS.
func (c *Client) SearchByContent(ctx context.Context, categories []string, max int) ([]memory.ReferencePhoto, error) {
	upper := make([]string, 0, len(categories))
	for _, cat := range categories {
		upper = append(upper, strings.ToUpper(strings.TrimSpace(cat)))
	}
	body := map[string]any{
		"filters": map[string]any{
			"contentFilter":   map[string]any{"includedContentCategories": upper},
			"mediaTypeFilter": map[string]any{"mediaTypes": []string{"PHOTO"}},
		},
		"pageSize": max,
	}
	return c.search(ctx, body, max, 0.7)
}

func (c *Client) search(ctx context.Context, body map[string]any, max int, score float64) ([]memory.ReferencePhoto, error) {
	var resp searchResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/mediaItems:search", body, &resp); err != nil {
		return nil, err
	}
	items := resp.MediaItems
	if len(items) > max {
		items = items[:max]
	}
	photos := make([]memory.ReferencePhoto, 0, len(items))
	for _, item := range items {
		p := memory.ReferencePhoto{
			MediaItemID:    item.ID,
			URL:            item.BaseURL,
			ThumbnailURL:   item.BaseURL + "=w200-h200",
			Description:    item.Description,
			RelevanceScore: score,
		}
		if t, err := time.Parse(time.RFC3339, item.MediaMetadata.CreationTime); err == nil {
			p.CreationTime = &t
		}
		photos = append(photos, p)
	}
	return photos, nil
}

// Upload pushes generated image bytes into the user's library. Two phases:
// raw bytes to the uploads endpoint for an upload token, then item creation.
func (c *Client) Upload(ctx context.Context, imageBytes []byte, filename, description string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", bytes.NewReader(imageBytes))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Upload-Content-Type", sniffImageMIME(filename))
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("upload bytes: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", "", fmt.Errorf("upload bytes: %w", err)
	}
	tokenBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", "", fmt.Errorf("read upload token: %w", err)
	}
	uploadToken := strings.TrimSpace(string(tokenBytes))
	if uploadToken == "" {
		return "", "", fmt.Errorf("empty upload token")
	}

	if len(description) > 1000 {
		description = description[:1000]
	}
	createBody := map[string]any{
		"newMediaItems": []map[string]any{{
			"description": description,
			"simpleMediaItem": map[string]any{
				"uploadToken": uploadToken,
				"fileName":    filename,
			},
		}},
	}
	var created struct {
		NewMediaItemResults []struct {
			Status struct {
				Message string `json:"message"`
			} `json:"status"`
			MediaItem struct {
				ID         string `json:"id"`
				ProductURL string `json:"productUrl"`
			} `json:"mediaItem"`
		} `json:"newMediaItemResults"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/mediaItems:batchCreate", createBody, &created); err != nil {
		return "", "", err
	}
	if len(created.NewMediaItemResults) == 0 || !strings.EqualFold(created.NewMediaItemResults[0].Status.Message, "Success") {
		return "", "", fmt.Errorf("media item creation rejected")
	}
	item := created.NewMediaItemResults[0].MediaItem
	observability.LoggerFromContext(ctx).Info("photo uploaded", "media_item_id", item.ID)
	return item.ID, item.ProductURL, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return memory.ErrAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("photo service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func dateParts(t time.Time) map[string]int {
	return map[string]int{"year": t.Year(), "month": int(t.Month()), "day": t.Day()}
}

func sniffImageMIME(filename string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(filename), ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
