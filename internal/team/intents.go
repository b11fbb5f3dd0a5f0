package team

import (
	"strings"
	"unicode"
)

// Intent phrases are matched against the lowercased user message. Multi-word
// phrases match as substrings; single-word phrases match whole words only,
// so "yesterday" never reads as "yes". The collector handles anything richer.

var skipPhrases = []string{
	"skip", "no photos", "without photos", "no reference", "don't need photos",
	"just generate", "no thanks",
}

var startOverPhrases = []string{
	"start over", "start again", "new memory", "restart", "begin again",
}

var changeStoryPhrases = []string{
	"change the story", "change story", "different memory", "wrong memory",
	"not what happened", "change what happened",
}

var changeReferencePhrases = []string{
	"change photos", "different photos", "change reference", "other photos",
	"pick again", "reselect",
}

var generatePhrases = []string{
	"generate", "create it", "make it", "go ahead", "yes", "looks good",
	"proceed", "do it",
}

var doneSelectingPhrases = []string{
	"done", "finished", "i'm done", "selected", "picked", "ready",
}

var retryPhrases = []string{
	"retry", "try again", "again",
}

var autoSearchPhrases = []string{
	"search", "suggest", "find photos", "find some", "look for",
}

func matchesAny(text string, phrases []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	var words []string
	for _, p := range phrases {
		if strings.Contains(p, " ") {
			if strings.Contains(t, p) {
				return true
			}
			continue
		}
		if words == nil {
			words = strings.FieldsFunc(t, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r)
			})
		}
		for _, w := range words {
			if w == p {
				return true
			}
		}
	}
	return false
}

func wantsSkip(text string) bool             { return matchesAny(text, skipPhrases) }
func wantsStartOver(text string) bool        { return matchesAny(text, startOverPhrases) }
func wantsChangeStory(text string) bool      { return matchesAny(text, changeStoryPhrases) }
func wantsChangeReferences(text string) bool { return matchesAny(text, changeReferencePhrases) }
func wantsGenerate(text string) bool         { return matchesAny(text, generatePhrases) }
func doneSelecting(text string) bool         { return matchesAny(text, doneSelectingPhrases) }
func wantsRetry(text string) bool            { return matchesAny(text, retryPhrases) }
func wantsAutoSearch(text string) bool       { return matchesAny(text, autoSearchPhrases) }
