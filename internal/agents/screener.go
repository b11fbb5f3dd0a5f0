package agents

import (
	"context"
	"net/http"
	"strings"

	openaigo "github.com/openai/openai-go/v3"

	"github.com/gibbonas/MemAgent/internal/config"
	"github.com/gibbonas/MemAgent/internal/observability"
)

const screenerSystemPrompt = `You are a content policy specialist for an image generation service.

Review the memory description and decide whether it can be generated safely.
Check for: violence or gore, explicit content, hate speech, copyrighted
characters, and public figures in sensitive contexts. Personal memories are
often sensitive; be strict but fair, and when you deny something explain how
the user could rephrase it.

Reply using exactly this structure:
APPROVED: Yes/No
VIOLATIONS: [comma-separated list, or "None"]
SEVERITY: none/low/medium/high
SUGGESTIONS: [specific rewording advice if violations were found]`

// Screener wraps the content-screener agent.
type Screener struct {
	httpClient *http.Client
	cfg        config.LLMConfig
}

func NewScreener(httpClient *http.Client, cfg config.LLMConfig) *Screener {
	return &Screener{httpClient: httpClient, cfg: cfg}
}

func (s *Screener) Run(ctx context.Context, content string) (Completion, error) {
	return WithRetry(ctx, func(ctx context.Context) (Completion, error) {
		return CallChatCompletion(ctx, s.httpClient, s.cfg, s.cfg.ScreenerModel, []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(screenerSystemPrompt),
			openaigo.UserMessage("Review this memory for content policy: " + content),
		})
	})
}

// Verdict is the screener's parsed judgment.
type Verdict struct {
	Approved    bool
	Violations  []string
	Severity    string
	Suggestions []string
}

// ParseVerdict reads the APPROVED/VIOLATIONS/SEVERITY/SUGGESTIONS protocol.
// Output that does not follow the protocol is treated as approval with the
// anomaly logged; the deterministic policy guardrail still runs upstream, so
// a flaky screener cannot silently wave through known-bad content.
func ParseVerdict(ctx context.Context, raw string) Verdict {
	v := Verdict{Approved: true, Severity: "none"}
	sawApproved := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "APPROVED":
			sawApproved = true
			v.Approved = strings.EqualFold(val, "yes")
		case "VIOLATIONS":
			v.Violations = parseVerdictList(val)
		case "SEVERITY":
			if val != "" {
				v.Severity = strings.ToLower(val)
			}
		case "SUGGESTIONS":
			v.Suggestions = parseVerdictList(val)
		}
	}

	if !sawApproved {
		observability.LoggerFromContext(ctx).Warn("screener verdict did not follow protocol, defaulting to approved",
			"preview", preview(raw, 120))
		return Verdict{Approved: true, Severity: "none"}
	}
	return v
}

func parseVerdictList(val string) []string {
	val = strings.Trim(val, "[]")
	if val == "" || strings.EqualFold(val, "none") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if t := strings.TrimSpace(part); t != "" && !strings.EqualFold(t, "none") {
			out = append(out, t)
		}
	}
	return out
}
