package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gibbonas/MemAgent/internal/budget"
	"github.com/gibbonas/MemAgent/internal/config"
	"github.com/gibbonas/MemAgent/internal/guardrail"
	"github.com/gibbonas/MemAgent/internal/team"
)

func testServer() *Server {
	cfg := config.Config{
		ListenAddr: ":0",
		Budget: config.BudgetConfig{
			MaxTokensPerSession:   15000,
			MaxTokensPerUserDaily: 50000,
			WarnThreshold:         0.8,
		},
	}
	tracker := budget.NewTracker(budget.NewMemStore(), cfg.Budget)
	orch := team.New(team.NewStore(time.Hour, 100), cfg)
	return NewServer(cfg, orch, tracker, guardrail.NewChain(guardrail.NewContentPolicy()))
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(testServer().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateSessionRequiresUserID(t *testing.T) {
	srv := httptest.NewServer(testServer().Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateSessionReturnsID(t *testing.T) {
	srv := httptest.NewServer(testServer().Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", strings.NewReader(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["session_id"] == "" {
		t.Error("expected a session id")
	}
	if body["stage"] != "collecting" {
		t.Errorf("stage = %q", body["stage"])
	}
}

func TestMessageEndpointReturnsEnvelope(t *testing.T) {
	srv := httptest.NewServer(testServer().Handler())
	defer srv.Close()

	// No LLM endpoint is configured, so the collector call fails and the
	// orchestrator reports a recoverable error without advancing the stage.
	resp, err := http.Post(srv.URL+"/api/v1/sessions/s1/messages", "application/json",
		strings.NewReader(`{"user_id":"u1","message":"my memory"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var env team.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.SessionID != "s1" {
		t.Errorf("session_id = %q", env.SessionID)
	}
	if env.Stage != "collecting" {
		t.Errorf("stage = %q, want collecting", env.Stage)
	}
	if env.Message == "" {
		t.Error("expected a user-facing message")
	}
}

func TestPickerStatusRequiresToken(t *testing.T) {
	srv := httptest.NewServer(testServer().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/picker/p1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}
