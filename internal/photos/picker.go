package photos

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gibbonas/MemAgent/internal/memory"
	"github.com/gibbonas/MemAgent/internal/observability"
)

const (
	// DefaultPollInterval is used when the service does not advertise one.
	DefaultPollInterval = 3 * time.Second
	// DefaultPollTimeout bounds one whole poll loop, independent of any
	// single poll's latency.
	DefaultPollTimeout = 120 * time.Second

	pickerMaxItems = 8
)

type pickerSessionResponse struct {
	ID            string `json:"id"`
	PickerURI     string `json:"pickerUri"`
	ExpireTime    string `json:"expireTime"`
	MediaItemsSet bool   `json:"mediaItemsSet"`
	PollingConfig struct {
		PollInterval string `json:"pollInterval"`
	} `json:"pollingConfig"`
}

// CreatePickerSession opens a new interactive selection session. The returned
// PickerURI is for the user to open out-of-band; completion is observed by
// polling.
func (c *Client) CreatePickerSession(ctx context.Context, userID string) (memory.PickerSession, error) {
	body := map[string]any{
		"pickingConfig": map[string]any{"maxItemCount": fmt.Sprintf("%d", pickerMaxItems)},
	}
	var resp pickerSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, c.pickerBaseURL+"/sessions", body, &resp); err != nil {
		return memory.PickerSession{}, err
	}
	sess := resp.toSession(userID)
	observability.LoggerFromContext(ctx).Info("picker session created", "picker_session_id", sess.ID)
	return sess, nil
}

// GetPickerSession fetches current picker status; MediaItemsSet reports
// whether the user has finished selecting.
func (c *Client) GetPickerSession(ctx context.Context, pickerSessionID string) (memory.PickerSession, error) {
	var resp pickerSessionResponse
	if err := c.doJSON(ctx, http.MethodGet, c.pickerBaseURL+"/sessions/"+pickerSessionID, nil, &resp); err != nil {
		return memory.PickerSession{}, err
	}
	return resp.toSession(""), nil
}

// DeletePickerSession frees the session server-side. Best effort; a missing
// session is not an error.
func (c *Client) DeletePickerSession(ctx context.Context, pickerSessionID string) error {
	err := c.doJSON(ctx, http.MethodDelete, c.pickerBaseURL+"/sessions/"+pickerSessionID, nil, nil)
	if err != nil && strings.Contains(err.Error(), "404") {
		return nil
	}
	return err
}

// ListPickerMedia fetches the picked media items, following pagination up to
// max. Call only after MediaItemsSet is observed true.
func (c *Client) ListPickerMedia(ctx context.Context, pickerSessionID string, max int) ([]memory.ReferencePhoto, error) {
	var (
		out       []memory.ReferencePhoto
		pageToken string
	)
	for len(out) < max {
		url := fmt.Sprintf("%s/mediaItems?sessionId=%s&pageSize=%d", c.pickerBaseURL, pickerSessionID, max-len(out))
		if pageToken != "" {
			url += "&pageToken=" + pageToken
		}
		var page struct {
			MediaItems []struct {
				ID         string `json:"id"`
				CreateTime string `json:"createTime"`
				MediaFile  struct {
					BaseURL  string `json:"baseUrl"`
					Filename string `json:"filename"`
				} `json:"mediaFile"`
			} `json:"mediaItems"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := c.doJSON(ctx, http.MethodGet, url, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.MediaItems {
			p := memory.ReferencePhoto{
				MediaItemID:  item.ID,
				URL:          item.MediaFile.BaseURL,
				ThumbnailURL: item.MediaFile.BaseURL + "=w200-h200",
				Description:  item.MediaFile.Filename,
			}
			if t, err := time.Parse(time.RFC3339, item.CreateTime); err == nil {
				p.CreationTime = &t
			}
			out = append(out, p)
		}
		pageToken = page.NextPageToken
		if pageToken == "" || len(page.MediaItems) == 0 {
			break
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// PollUntilSet polls picker status every interval until the user finishes or
// timeout elapses. Returns (true, nil) on completion and (false, nil) on
// timeout, which is recoverable: the session stays in its waiting stage and
// the user may retry or skip. Errors other than timeout are returned as-is.
func (c *Client) PollUntilSet(ctx context.Context, pickerSessionID string, interval, timeout time.Duration) (bool, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sess, err := c.GetPickerSession(ctx, pickerSessionID)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		if sess.MediaItemsSet {
			return true, nil
		}
		if sess.PollingInterval > 0 && sess.PollingInterval != interval {
			interval = sess.PollingInterval
			ticker.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

func (r pickerSessionResponse) toSession(userID string) memory.PickerSession {
	sess := memory.PickerSession{
		ID:            r.ID,
		UserID:        userID,
		PickerURI:     normalizePickerURI(r.PickerURI),
		MediaItemsSet: r.MediaItemsSet,
	}
	if t, err := time.Parse(time.RFC3339, r.ExpireTime); err == nil {
		sess.ExpireTime = t
	}
	if d, err := time.ParseDuration(r.PollingConfig.PollInterval); err == nil && d > 0 {
		sess.PollingInterval = d
	} else {
		sess.PollingInterval = DefaultPollInterval
	}
	return sess
}

// normalizePickerURI appends the autoclose suffix so the external picker tab
// closes itself once the user finishes.
func normalizePickerURI(uri string) string {
	if uri == "" {
		return ""
	}
	if strings.HasSuffix(uri, "/autoclose") {
		return uri
	}
	return strings.TrimRight(uri, "/") + "/autoclose"
}
