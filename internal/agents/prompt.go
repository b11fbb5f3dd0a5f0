package agents

import (
	"fmt"
	"strings"

	"github.com/gibbonas/MemAgent/internal/memory"
)

// BuildGenerationPrompt assembles the image generation prompt from the
// extraction, the number of selected reference photos, and any free-text
// context the user added about those photos.
func BuildGenerationPrompt(ext *memory.Extraction, refCount int, photoContext string) string {
	people := "no specific people"
	if len(ext.WhoPeople) > 0 {
		people = strings.Join(ext.WhoPeople, ", ")
	}
	pets := ""
	if len(ext.WhoPets) > 0 {
		pets = " with " + strings.Join(ext.WhoPets, ", ")
	}
	location := ""
	if ext.Where != "" {
		location = " at " + ext.Where
	}
	mood := ""
	if ext.Mood != "" {
		mood = ", " + ext.Mood + " mood"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate a photorealistic image: %s%s.\n", ext.WhatHappened, location)
	fmt.Fprintf(&b, "People: %s%s.\n", people, pets)
	fmt.Fprintf(&b, "Style: Natural, candid photography%s.\n", mood)
	b.WriteString("High quality, detailed, realistic lighting.")

	if refCount > 0 {
		fmt.Fprintf(&b, "\n\nReference photos selected: %d photos to guide style, people, and setting.", refCount)
	}
	if pc := strings.TrimSpace(photoContext); pc != "" {
		fmt.Fprintf(&b, "\n\nUser notes about the reference photos: %s", pc)
	}
	return b.String()
}
