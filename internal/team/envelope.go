package team

import "github.com/gibbonas/MemAgent/internal/memory"

// Envelope is the orchestrator's reply for one input event. Transports
// (HTTP, WebSocket) serialize it as-is; Message is always safe to show the
// user verbatim.
type Envelope struct {
	SessionID string           `json:"session_id"`
	Stage     memory.Stage     `json:"stage"`
	Message   string           `json:"message"`
	ErrorKind memory.ErrorKind `json:"error_kind,omitempty"`
	Warning   string           `json:"warning,omitempty"`

	RequiresReauth bool `json:"requires_reauth,omitempty"`

	PickerURI              string `json:"picker_uri,omitempty"`
	PickerSessionID        string `json:"picker_session_id,omitempty"`
	PollingIntervalSeconds int    `json:"polling_interval_seconds,omitempty"`

	ReferencePhotos []memory.ReferencePhoto `json:"reference_photos,omitempty"`
	Extraction      *memory.Extraction      `json:"extraction,omitempty"`
	Violations      []string                `json:"violations,omitempty"`
	Suggestions     []string                `json:"suggestions,omitempty"`
	Artifact        *memory.Artifact        `json:"artifact,omitempty"`
}

// reply builds the common envelope fields from the session's current state.
func reply(s *Session, message string) Envelope {
	return Envelope{SessionID: s.ID, Stage: s.Stage, Message: message}
}
