package photos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func pickerBody(id string, set bool) map[string]any {
	return map[string]any{
		"id":            id,
		"pickerUri":     "https://picker.example/" + id,
		"expireTime":    time.Now().Add(time.Hour).Format(time.RFC3339),
		"mediaItemsSet": set,
		"pollingConfig": map[string]string{"pollInterval": "10ms"},
	}
}

func TestCreatePickerSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(pickerBody("p1", false))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, "tok")
	sess, err := c.CreatePickerSession(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "p1" {
		t.Errorf("id = %q", sess.ID)
	}
	if sess.PickerURI != "https://picker.example/p1/autoclose" {
		t.Errorf("picker uri = %q, want autoclose suffix", sess.PickerURI)
	}
	if sess.PollingInterval != 10*time.Millisecond {
		t.Errorf("polling interval = %v", sess.PollingInterval)
	}
}

func TestPollUntilSetCompletes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// The user finishes on the third status check.
		done := calls.Add(1) >= 3
		_ = json.NewEncoder(w).Encode(pickerBody("p1", done))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, "tok")
	set, err := c.PollUntilSet(context.Background(), "p1", 5*time.Millisecond, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !set {
		t.Fatal("expected completion")
	}
	if n := calls.Load(); n < 3 {
		t.Errorf("polled %d times, want at least 3", n)
	}
}

func TestPollUntilSetTimeoutIsRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pickerBody("p1", false))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, "tok")
	set, err := c.PollUntilSet(context.Background(), "p1", 5*time.Millisecond, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout must not be an error, got %v", err)
	}
	if set {
		t.Fatal("nothing was ever set")
	}
}

func TestPollUntilSetSurfacesAuthErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, "tok")
	_, err := c.PollUntilSet(context.Background(), "p1", 5*time.Millisecond, time.Second)
	if err == nil {
		t.Fatal("expected an error for a 401 response")
	}
}

func TestListPickerMediaPaginates(t *testing.T) {
	page := func(ids []string, next string) map[string]any {
		items := make([]map[string]any, len(ids))
		for i, id := range ids {
			items[i] = map[string]any{
				"id":         id,
				"createTime": "2020-06-15T14:00:00Z",
				"mediaFile":  map[string]string{"baseUrl": "https://media.example/" + id, "filename": id + ".jpg"},
			}
		}
		body := map[string]any{"mediaItems": items}
		if next != "" {
			body["nextPageToken"] = next
		}
		return body
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "t2" {
			_ = json.NewEncoder(w).Encode(page([]string{"c", "d"}, ""))
			return
		}
		_ = json.NewEncoder(w).Encode(page([]string{"a", "b"}, "t2"))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, "tok")
	items, err := c.ListPickerMedia(context.Background(), "p1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3 (capped)", len(items))
	}
	if items[0].MediaItemID != "a" || items[2].MediaItemID != "c" {
		t.Errorf("items = %v", items)
	}
	if items[0].ThumbnailURL != "https://media.example/a=w200-h200" {
		t.Errorf("thumbnail = %q", items[0].ThumbnailURL)
	}
	if items[0].CreationTime == nil {
		t.Error("expected parsed creation time")
	}
}

func TestDeletePickerSessionToleratesMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, srv.URL, "tok")
	if err := c.DeletePickerSession(context.Background(), "gone"); err != nil {
		t.Fatalf("404 should be tolerated, got %v", err)
	}
}

func TestNormalizePickerURI(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://p.example/s1", "https://p.example/s1/autoclose"},
		{"https://p.example/s1/", "https://p.example/s1/autoclose"},
		{"https://p.example/s1/autoclose", "https://p.example/s1/autoclose"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizePickerURI(tt.in); got != tt.want {
			t.Errorf("normalizePickerURI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
