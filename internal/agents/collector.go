package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"

	"github.com/gibbonas/MemAgent/internal/config"
	"github.com/gibbonas/MemAgent/internal/memory"
	"github.com/gibbonas/MemAgent/internal/observability"
)

const collectorSystemPrompt = `You are a quick, empathetic memory collector that helps users preserve moments.

Gather three essentials through short, warm exchanges (1-2 sentences per reply):
- What happened: the scene to visualize
- When: a date, even approximate ("last summer" is fine - estimate a concrete date and keep the original phrasing)
- Who: the people involved (first names are fine); also note any pets

Optional: where it happened and the emotional mood. Do not push for them.

If something essential is missing, ask ONE focused question and reply as:
{"status": "needs_info", "message": "<your question>"}

Once you can answer what, when and who, reply as:
{"status": "ready",
 "extraction": {
   "what_happened": "<scene description>",
   "when": "YYYY-MM-DD HH:MM:SS or null",
   "when_description": "<original relative phrasing, if any>",
   "who_people": ["name"],
   "who_pets": ["pet name and kind"],
   "where": "<location or null>",
   "emotions_mood": "<mood or null>",
   "is_complete": true
 },
 "confirmation_message": "<one sentence confirming what you will create>"}

Always reply with exactly one JSON object and nothing else.`

// Collector wraps the memory-collector agent: conversation history in,
// structured extraction or a follow-up question out.
type Collector struct {
	httpClient *http.Client
	cfg        config.LLMConfig
}

func NewCollector(httpClient *http.Client, cfg config.LLMConfig) *Collector {
	return &Collector{httpClient: httpClient, cfg: cfg}
}

// Run sends the formatted conversation context to the collector model.
func (c *Collector) Run(ctx context.Context, conversation string) (Completion, error) {
	return WithRetry(ctx, func(ctx context.Context) (Completion, error) {
		return CallChatCompletion(ctx, c.httpClient, c.cfg, c.cfg.CollectorModel, []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(collectorSystemPrompt),
			openaigo.UserMessage(conversation),
		})
	})
}

// CollectorResult is the parsed outcome of a collector turn.
type CollectorResult struct {
	Ready        bool
	Extraction   *memory.Extraction
	Confirmation string
	// Message is the user-facing reply when more information is needed.
	Message string
	// Malformed marks output that was not valid structured data and was
	// degraded to a conversational reply.
	Malformed bool
}

type collectorPayload struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Extraction *struct {
		WhatHappened    string   `json:"what_happened"`
		When            string   `json:"when"`
		WhenDescription string   `json:"when_description"`
		WhoPeople       []string `json:"who_people"`
		WhoPets         []string `json:"who_pets"`
		Where           string   `json:"where"`
		EmotionsMood    string   `json:"emotions_mood"`
		IsComplete      bool     `json:"is_complete"`
		MissingFields   []string `json:"missing_fields"`
	} `json:"extraction"`
	ConfirmationMessage string `json:"confirmation_message"`
}

// ParseCollectorOutput interprets raw collector output. It never fails:
// malformed output degrades to a needs-info reply carrying the raw text, and
// the anomaly is logged for diagnosis. "ready" is only honored when the
// payload itself says is_complete, guarding against malformed upstream output.
func ParseCollectorOutput(ctx context.Context, raw string) CollectorResult {
	jsonStr := extractJSONFromText(raw)
	if jsonStr == "" {
		return CollectorResult{Message: strings.TrimSpace(raw), Malformed: true}
	}

	var payload collectorPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		observability.LoggerFromContext(ctx).Warn("collector output not valid JSON, degrading to conversational reply",
			"error", err, "preview", preview(raw, 120))
		return CollectorResult{Message: strings.TrimSpace(raw), Malformed: true}
	}

	if payload.Status == "ready" && payload.Extraction != nil && payload.Extraction.IsComplete {
		ext := &memory.Extraction{
			WhatHappened:    strings.TrimSpace(payload.Extraction.WhatHappened),
			WhenDescription: cleanNullable(payload.Extraction.WhenDescription),
			WhoPeople:       cleanList(payload.Extraction.WhoPeople),
			WhoPets:         cleanList(payload.Extraction.WhoPets),
			Where:           cleanNullable(payload.Extraction.Where),
			Mood:            cleanNullable(payload.Extraction.EmotionsMood),
			IsComplete:      true,
			MissingFields:   cleanList(payload.Extraction.MissingFields),
		}
		if t, ok := parseWhen(payload.Extraction.When); ok {
			ext.When = &t
		}
		return CollectorResult{
			Ready:        true,
			Extraction:   ext,
			Confirmation: strings.TrimSpace(payload.ConfirmationMessage),
		}
	}

	msg := strings.TrimSpace(payload.Message)
	if msg == "" {
		msg = strings.TrimSpace(payload.ConfirmationMessage)
	}
	if msg == "" {
		msg = strings.TrimSpace(raw)
	}
	if payload.Status == "ready" {
		// Tagged ready but incomplete underneath; treat as still collecting.
		observability.LoggerFromContext(ctx).Warn("collector said ready without a complete extraction",
			"preview", preview(raw, 120))
	}
	return CollectorResult{Message: msg}
}

func parseWhen(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cleanNullable(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return s
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
