package guardrail

import (
	"context"
	"regexp"

	"github.com/gibbonas/MemAgent/internal/memory"
)

// violationPatterns maps a violation kind to the patterns that trip it and
// the advice offered to the user.
var violationPatterns = []struct {
	kind       string
	severity   string
	suggestion string
	patterns   []*regexp.Regexp
}{
	{
		kind:       "violence",
		severity:   "high",
		suggestion: "Try describing the scene without violent or graphic details; focus on the emotional side of the moment.",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(blood|gore|violent|weapon|gun|knife|murder|kill(?:ing)?|death)\b`),
			regexp.MustCompile(`(?i)\b(fight|attack|assault|injure|wound)\b`),
		},
	},
	{
		kind:       "explicit",
		severity:   "high",
		suggestion: "Please keep descriptions family-friendly and appropriate for all audiences.",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(nude|naked|explicit|sexual|xxx|nsfw)\b`),
		},
	},
	{
		kind:       "copyrighted",
		severity:   "medium",
		suggestion: "Instead of naming copyrighted characters, describe original ones (for example 'a magical creature').",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(mickey mouse|superman|batman|spiderman|star wars|harry potter|pokemon)\b`),
			regexp.MustCompile(`(?i)\b(disney|marvel|pixar|dreamworks)\b`),
		},
	},
	{
		kind:       "hate_speech",
		severity:   "medium",
		suggestion: "Please revise to remove any discriminatory or hateful content.",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(racist|sexist|homophobic|discriminat\w*)\b`),
		},
	},
}

// ContentPolicy pre-validates story text against generation policies before
// any model is paid to look at it.
type ContentPolicy struct{}

func NewContentPolicy() *ContentPolicy { return &ContentPolicy{} }

func (g *ContentPolicy) Name() string { return "content_policy" }

func (g *ContentPolicy) Check(_ context.Context, cp Checkpoint, req Request) error {
	if cp != PreScreening && cp != PreGeneration {
		return nil
	}
	var (
		violations  []string
		suggestions []string
		severity    = "none"
	)
	for _, vp := range violationPatterns {
		for _, re := range vp.patterns {
			if re.MatchString(req.Content) {
				violations = append(violations, vp.kind)
				suggestions = append(suggestions, vp.suggestion)
				if severity != "high" {
					severity = vp.severity
				}
				break
			}
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return &memory.PolicyViolationError{
		Violations:  violations,
		Suggestions: suggestions,
		Severity:    severity,
	}
}
