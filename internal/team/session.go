package team

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gibbonas/MemAgent/internal/memory"
)

const (
	// maxHistoryTurns bounds the stored dialogue. Older turns are discarded;
	// durable facts live in the extraction, so truncation loses nothing the
	// pipeline needs.
	maxHistoryTurns = 12

	// contextTurns is how much history the collector sees per call.
	contextTurns = 6
)

// Session is one conversation's full state. It is owned by the Orchestrator
// and mutated only by stage handlers while mu is held; collaborator handles
// are never stored on it.
type Session struct {
	ID     string
	UserID string
	Stage  memory.Stage

	Messages   []memory.Message
	Extraction *memory.Extraction

	ReferencePhotos       []memory.ReferencePhoto
	SelectedReferenceIDs  []string
	SelectedReferenceURLs []string
	PhotoContext          string

	// Picker is the at-most-one active (unconsumed) picker session.
	Picker *memory.PickerSession
	// processedPickers records picker completion events already merged, so
	// observing the same completion twice never duplicates photos.
	processedPickers map[string]struct{}

	Artifact *memory.Artifact

	CreatedAt time.Time
	// lastActivity is unix nanoseconds, accessed atomically: the store
	// touches and reads it without taking the session lock, which a handler
	// may hold across a slow external call.
	lastActivity atomic.Int64

	mu sync.Mutex
}

func newSession(id, userID string) *Session {
	s := &Session{
		ID:               id,
		UserID:           userID,
		Stage:            memory.StageCollecting,
		processedPickers: make(map[string]struct{}),
		CreatedAt:        time.Now(),
	}
	s.touch()
	return s
}

// touch records activity now.
func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// lastTouched returns the most recent activity time.
func (s *Session) lastTouched() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// addMessage appends one dialogue turn, trimming history to its bound.
func (s *Session) addMessage(role, content string) {
	s.Messages = append(s.Messages, memory.Message{Role: role, Content: content, SentAt: time.Now()})
	if len(s.Messages) > maxHistoryTurns {
		s.Messages = s.Messages[len(s.Messages)-maxHistoryTurns:]
	}
}

// conversationContext formats the recent dialogue for the collector.
func (s *Session) conversationContext() string {
	msgs := s.Messages
	if len(msgs) > contextTurns {
		msgs = msgs[len(msgs)-contextTurns:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), m.Content))
	}
	return strings.Join(lines, "\n")
}

// transition moves the session to a new stage, refusing walks the state
// graph does not allow.
func (s *Session) transition(to memory.Stage) error {
	if !memory.CanTransition(s.Stage, to) {
		return fmt.Errorf("invalid stage transition from %s to %s", s.Stage, to)
	}
	s.Stage = to
	return nil
}

// appendPhotoContext accumulates free-text notes destined for the image
// prompt.
func (s *Session) appendPhotoContext(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if s.PhotoContext == "" {
		s.PhotoContext = text
		return
	}
	s.PhotoContext = s.PhotoContext + " " + text
}

// pickerProcessed reports whether a picker completion was already merged.
func (s *Session) pickerProcessed(pickerSessionID string) bool {
	_, ok := s.processedPickers[pickerSessionID]
	return ok
}

// consumePicker marks the picker completion as processed and drops the
// active picker handle. Exactly one merge can ever follow a completion.
func (s *Session) consumePicker(pickerSessionID string) {
	s.processedPickers[pickerSessionID] = struct{}{}
	if s.Picker != nil && s.Picker.ID == pickerSessionID {
		s.Picker = nil
	}
}

// clearSelection drops any suggested and selected references. Used by skip
// and change-references paths; an abandoned picker is consumed so a late
// completion result is discarded rather than applied.
func (s *Session) clearSelection() {
	s.ReferencePhotos = nil
	s.SelectedReferenceIDs = nil
	s.SelectedReferenceURLs = nil
	s.PhotoContext = ""
	if s.Picker != nil {
		s.consumePicker(s.Picker.ID)
	}
}
