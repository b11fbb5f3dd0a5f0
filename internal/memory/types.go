package memory

import (
	"strings"
	"time"
)

// Extraction is the structured fact set distilled from the user's story.
// When is nil if no concrete point in time could be resolved; WhenDescription
// keeps the user's own phrasing ("last summer") which the timestamp loses.
type Extraction struct {
	WhatHappened    string     `json:"what_happened"`
	When            *time.Time `json:"when,omitempty"`
	WhenDescription string     `json:"when_description,omitempty"`
	WhoPeople       []string   `json:"who_people"`
	WhoPets         []string   `json:"who_pets"`
	Where           string     `json:"where,omitempty"`
	Mood            string     `json:"mood,omitempty"`
	IsComplete      bool       `json:"is_complete"`
	MissingFields   []string   `json:"missing_fields,omitempty"`
}

// HasSubjects reports whether the extraction mentions any people or pets,
// which is what makes reference photos worth offering.
func (e *Extraction) HasSubjects() bool {
	return e != nil && (len(e.WhoPeople) > 0 || len(e.WhoPets) > 0)
}

// HasTimeframe reports whether any form of time information was captured.
func (e *Extraction) HasTimeframe() bool {
	return e != nil && (e.When != nil || strings.TrimSpace(e.WhenDescription) != "")
}

// Message is one turn of the collection dialogue.
type Message struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// ReferencePhoto is an externally sourced image that guides generation.
// MediaItemID is unique within a session's reference set.
type ReferencePhoto struct {
	MediaItemID    string     `json:"media_item_id"`
	URL            string     `json:"url"`
	ThumbnailURL   string     `json:"thumbnail_url,omitempty"`
	CreationTime   *time.Time `json:"creation_time,omitempty"`
	Description    string     `json:"description,omitempty"`
	RelevanceScore float64    `json:"relevance_score"`
}

// PickerSession tracks one interactive selection handoff to the external
// photo library. MediaItemsSet flips exactly once, when the user finishes.
type PickerSession struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	PickerURI       string        `json:"picker_uri"`
	ExpireTime      time.Time     `json:"expire_time"`
	MediaItemsSet   bool          `json:"media_items_set"`
	PollingInterval time.Duration `json:"polling_interval"`
}

// Artifact is the finished generated image plus where it ended up.
type Artifact struct {
	ImageURL     string `json:"image_url,omitempty"`
	MediaItemID  string `json:"media_item_id,omitempty"`
	LibraryURL   string `json:"library_url,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	UploadFailed bool   `json:"upload_failed,omitempty"`
}
