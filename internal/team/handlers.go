package team

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gibbonas/MemAgent/internal/agents"
	"github.com/gibbonas/MemAgent/internal/guardrail"
	"github.com/gibbonas/MemAgent/internal/memory"
	"github.com/gibbonas/MemAgent/internal/observability"
	"github.com/gibbonas/MemAgent/internal/photos"
)

// handleCollecting runs the collector over the conversation and decides
// whether the story is complete enough to move on.
func (o *Orchestrator) handleCollecting(ctx context.Context, s *Session, in Input, c Collaborators) Envelope {
	log := observability.LoggerFromContext(ctx)
	if in.Text == "" {
		return reply(s, "Tell me about the memory you'd like to create.")
	}

	st, err := c.Tracker.Check(ctx, s.UserID, s.ID, estCollectorTokens)
	if err != nil {
		if be := asBudgetError(err); be != nil {
			return budgetEnvelope(s, be)
		}
		log.Error("budget check failed", slog.Any("error", err))
		env := reply(s, "I'm having trouble on my side right now. Please try again in a moment.")
		env.ErrorKind = memory.KindUnexpectedFailure
		return env
	}

	comp, err := c.Collector.Run(ctx, s.conversationContext())
	if err != nil {
		log.Warn("collector call failed", slog.Any("error", err))
		env := reply(s, "I couldn't process that just now. Could you tell me again?")
		env.ErrorKind = memory.KindExternalTimeout
		return env
	}
	if _, err := c.Tracker.Record(ctx, s.UserID, s.ID, "memory_collector", "collection", comp.Tokens); err != nil {
		log.Error("failed to record token usage", slog.Any("error", err))
	}

	res := agents.ParseCollectorOutput(ctx, comp.Text)
	if !res.Ready {
		env := reply(s, res.Message)
		if res.Malformed {
			env.ErrorKind = memory.KindParseFailure
		}
		if st.Warn {
			env.Warning = "You're approaching your usage limit."
		}
		return env
	}

	s.Extraction = res.Extraction
	confirmation := res.Confirmation
	if confirmation == "" {
		confirmation = "I have everything I need for this memory."
	}

	var env Envelope
	if res.Extraction.HasSubjects() {
		if err := s.transition(memory.StageReadyForSearch); err != nil {
			panic(err)
		}
		env = reply(s, fmt.Sprintf(
			"%s Would you like to add reference photos of %s? You can pick them from your library yourself, say 'search' to let me look, or 'skip' to go without.",
			confirmation, subjectSummary(res.Extraction)))
	} else {
		if err := s.transition(memory.StageConfirmGeneration); err != nil {
			panic(err)
		}
		env = reply(s, confirmation+" Shall I generate this memory now?")
	}
	env.Extraction = s.Extraction
	if st.Warn {
		env.Warning = "You're approaching your usage limit."
	}
	return env
}

// handleReadyForSearch routes the user's choice of photo strategy.
func (o *Orchestrator) handleReadyForSearch(ctx context.Context, s *Session, in Input, c Collaborators) Envelope {
	switch {
	case wantsChangeStory(in.Text):
		return o.backToCollecting(s)
	case wantsSkip(in.Text):
		if err := s.transition(memory.StageConfirmGeneration); err != nil {
			panic(err)
		}
		return reply(s, "No problem, we'll go without reference photos. Shall I generate this memory now?")
	case wantsAutoSearch(in.Text):
		return o.runAutoSearch(ctx, s, c)
	default:
		return o.startPicker(ctx, s, c)
	}
}

// runAutoSearch queries the photo library by date and content. Search never
// hard-fails: an empty result set moves the flow onward as if the user had
// skipped.
func (o *Orchestrator) runAutoSearch(ctx context.Context, s *Session, c Collaborators) Envelope {
	if env, refused := o.checkGuardrails(ctx, s, c, guardrail.PreSearch, s.Extraction.WhatHappened, 0); refused {
		return env
	}
	if c.Photos == nil {
		return reauthEnvelope(s)
	}

	found := photos.FindReferences(ctx, c.Photos, s.Extraction, photos.SearchOptions{
		QueryTimeout: o.cfg.Photos.SearchTimeout,
		TotalLimit:   maxReferencePhotos,
	})
	if len(found) == 0 {
		if err := s.transition(memory.StageConfirmGeneration); err != nil {
			panic(err)
		}
		return reply(s, "I couldn't find matching photos in your library, so we'll go without references. Shall I generate this memory now?")
	}

	s.ReferencePhotos = found
	if err := s.transition(memory.StageSelectingReferences); err != nil {
		panic(err)
	}
	env := reply(s, fmt.Sprintf(
		"I found %d photos that might match this memory. Confirm which ones you'd like to use, or say 'skip' to go without.", len(found)))
	env.ReferencePhotos = found
	return env
}

// startPicker opens (or re-offers) an interactive picker session. At most
// one picker is active per session; an unconsumed one is reused.
func (o *Orchestrator) startPicker(ctx context.Context, s *Session, c Collaborators) Envelope {
	if env, refused := o.checkGuardrails(ctx, s, c, guardrail.PreSearch, s.Extraction.WhatHappened, 0); refused {
		return env
	}
	if c.Photos == nil {
		return reauthEnvelope(s)
	}

	if s.Picker == nil {
		ps, err := c.Photos.CreatePickerSession(ctx, s.UserID)
		if err != nil {
			if memory.IsAuthExpired(err) {
				return reauthEnvelope(s)
			}
			observability.LoggerFromContext(ctx).Warn("picker session creation failed", slog.Any("error", err))
			if terr := s.transition(memory.StageSearchFailed); terr != nil {
				panic(terr)
			}
			env := reply(s, "I couldn't open your photo library just now. Say 'retry' to try again, or 'skip' to continue without photos.")
			env.ErrorKind = memory.KindExternalTimeout
			return env
		}
		s.Picker = &ps
	}
	if err := s.transition(memory.StageSelectingReferences); err != nil {
		panic(err)
	}

	env := reply(s, fmt.Sprintf(
		"Open this link to choose photos for your memory, then tell me 'done':\n%s\nOr say 'skip' to go without photos.", s.Picker.PickerURI))
	env.PickerURI = s.Picker.PickerURI
	env.PickerSessionID = s.Picker.ID
	env.PollingIntervalSeconds = int(s.Picker.PollingInterval / time.Second)
	return env
}

// handleSelectingReferences waits for the user to finish choosing photos,
// either through the picker or by confirming suggested search results.
func (o *Orchestrator) handleSelectingReferences(ctx context.Context, s *Session, in Input, c Collaborators) Envelope {
	// An interrupted fetch leaves the session parked here; treat it as still
	// selecting so 'done' retries the fetch.
	if s.Stage == memory.StageFetchingPicker {
		if err := s.transition(memory.StageSelectingReferences); err != nil {
			panic(err)
		}
	}

	if in.Selection != nil {
		return o.applySelection(s, in.Selection)
	}

	switch {
	case wantsSkip(in.Text):
		return o.skipReferences(ctx, s, c)
	case wantsChangeStory(in.Text):
		return o.backToCollecting(s)
	case doneSelecting(in.Text) || wantsRetry(in.Text):
		return o.completePicker(ctx, s, c)
	default:
		return reply(s, "When you've finished choosing photos, tell me 'done'. You can also say 'skip' to go without them.")
	}
}

// applySelection records a structured reference confirmation.
func (o *Orchestrator) applySelection(s *Session, sel *Selection) Envelope {
	ids := sel.MediaItemIDs
	urls := sel.URLs
	if len(s.ReferencePhotos) > 0 && len(ids) > 0 {
		// Confirmations against suggestions resolve URLs from the stored set;
		// unknown ids are ignored.
		ids, urls = resolveSelection(s.ReferencePhotos, ids)
	}
	if len(urls) == 0 && len(ids) == 0 {
		return reply(s, "I didn't catch which photos you'd like to use. Pick at least one, or say 'skip'.")
	}
	if len(urls) > maxReferencePhotos {
		urls = urls[:maxReferencePhotos]
	}
	if len(ids) > maxReferencePhotos {
		ids = ids[:maxReferencePhotos]
	}
	s.SelectedReferenceIDs = ids
	s.SelectedReferenceURLs = urls
	if strings.TrimSpace(sel.AdditionalContext) != "" {
		s.PhotoContext = strings.TrimSpace(sel.AdditionalContext)
	}
	if err := s.transition(memory.StageReadyToGenerate); err != nil {
		panic(err)
	}
	return reply(s, fmt.Sprintf(
		"Got it — %d reference photos selected. Add any extra context about them, or say 'generate' when you're ready.", len(urls)))
}

// completePicker polls for the user's picker selection and merges it into
// the session. The merge is keyed on the picker session id and happens at
// most once per picker, no matter how many times completion is observed.
func (o *Orchestrator) completePicker(ctx context.Context, s *Session, c Collaborators) Envelope {
	log := observability.LoggerFromContext(ctx)

	if s.Picker == nil {
		if len(s.ReferencePhotos) > 0 {
			return reply(s, "Just confirm which of the suggested photos you'd like to use, or say 'skip'.")
		}
		// No picker in flight; 'retry' opens a fresh one.
		return o.startPicker(ctx, s, c)
	}
	if c.Photos == nil {
		return reauthEnvelope(s)
	}

	pickerID := s.Picker.ID
	set, err := c.Photos.PollUntilSet(ctx, pickerID, s.Picker.PollingInterval, o.cfg.Photos.PollTimeout)
	if err != nil {
		if memory.IsAuthExpired(err) {
			return reauthEnvelope(s)
		}
		log.Warn("picker polling failed", slog.String("picker_session_id", pickerID), slog.Any("error", err))
		env := reply(s, "I'm having trouble checking your photo selection. Say 'retry' to check again, or 'skip' to go without photos.")
		env.ErrorKind = memory.KindExternalTimeout
		return env
	}
	if !set {
		return reply(s, "It looks like you haven't finished choosing photos yet. Take your time, then tell me 'done' — or say 'skip' to go without.")
	}

	if err := s.transition(memory.StageFetchingPicker); err != nil {
		panic(err)
	}
	if !s.pickerProcessed(pickerID) {
		items, err := c.Photos.ListPickerMedia(ctx, pickerID, maxReferencePhotos)
		if err != nil {
			if memory.IsAuthExpired(err) {
				return reauthEnvelope(s)
			}
			log.Warn("picker media fetch failed", slog.String("picker_session_id", pickerID), slog.Any("error", err))
			if terr := s.transition(memory.StageSelectingReferences); terr != nil {
				panic(terr)
			}
			env := reply(s, "I couldn't fetch your chosen photos. Say 'retry' to try again, or 'skip' to go without them.")
			env.ErrorKind = memory.KindExternalTimeout
			return env
		}
		s.ReferencePhotos = mergeReferences(s.ReferencePhotos, items, maxReferencePhotos)
		s.SelectedReferenceIDs, s.SelectedReferenceURLs = allReferenceIDs(s.ReferencePhotos)
		s.consumePicker(pickerID)
		if derr := c.Photos.DeletePickerSession(ctx, pickerID); derr != nil {
			log.Debug("picker session cleanup failed", slog.Any("error", derr))
		}
	}
	if err := s.transition(memory.StageReadyToGenerate); err != nil {
		panic(err)
	}

	env := reply(s, fmt.Sprintf(
		"Great — I've got your %d photos. Add any context about them, or say 'generate' when you're ready.", len(s.SelectedReferenceURLs)))
	env.ReferencePhotos = s.ReferencePhotos
	return env
}

// skipReferences abandons the photo branch. Any in-flight picker is consumed
// so a later completion of it is discarded, not applied.
func (o *Orchestrator) skipReferences(ctx context.Context, s *Session, c Collaborators) Envelope {
	if s.Picker != nil && c.Photos != nil {
		if err := c.Photos.DeletePickerSession(ctx, s.Picker.ID); err != nil {
			observability.LoggerFromContext(ctx).Debug("picker session cleanup failed", slog.Any("error", err))
		}
	}
	s.clearSelection()
	if err := s.transition(memory.StageConfirmGeneration); err != nil {
		panic(err)
	}
	return reply(s, "No problem, we'll go without reference photos. Shall I generate this memory now?")
}

// handleSearchFailed offers retry, skip, or a story change after the photo
// library was unreachable.
func (o *Orchestrator) handleSearchFailed(ctx context.Context, s *Session, in Input, c Collaborators) Envelope {
	switch {
	case wantsSkip(in.Text):
		if err := s.transition(memory.StageConfirmGeneration); err != nil {
			panic(err)
		}
		return reply(s, "Okay, we'll go without reference photos. Shall I generate this memory now?")
	case wantsChangeStory(in.Text):
		return o.backToCollecting(s)
	case wantsRetry(in.Text) || wantsGenerate(in.Text):
		return o.startPicker(ctx, s, c)
	default:
		return reply(s, "Your photo library wasn't reachable. Say 'retry' to try again, or 'skip' to continue without photos.")
	}
}

// handleReadyToGenerate gathers final context on the chosen references and
// waits for the go-ahead.
func (o *Orchestrator) handleReadyToGenerate(ctx context.Context, s *Session, in Input, c Collaborators) Envelope {
	if in.Selection != nil {
		return o.applySelection(s, in.Selection)
	}

	switch {
	case wantsChangeReferences(in.Text):
		s.clearSelection()
		if err := s.transition(memory.StageReadyForSearch); err != nil {
			panic(err)
		}
		return reply(s, "Okay, let's redo the photos. You can pick them yourself, say 'search' to let me look, or 'skip'.")
	case wantsChangeStory(in.Text):
		return o.backToCollecting(s)
	case wantsSkip(in.Text):
		s.clearSelection()
		if err := s.transition(memory.StageConfirmGeneration); err != nil {
			panic(err)
		}
		return reply(s, "We'll go without the photos then. Shall I generate this memory now?")
	case wantsGenerate(in.Text):
		s.appendPhotoContext(in.AdditionalContext)
		return o.runPipeline(ctx, s, c)
	default:
		// Free text here is treated as context about the chosen photos.
		s.appendPhotoContext(in.Text)
		return reply(s, "Noted. Say 'generate' when you're ready.")
	}
}

// handleConfirmGeneration waits for the final go-ahead on a memory without
// selected references.
func (o *Orchestrator) handleConfirmGeneration(ctx context.Context, s *Session, in Input, c Collaborators) Envelope {
	switch {
	case wantsChangeReferences(in.Text):
		if !s.Extraction.HasSubjects() {
			return reply(s, "This memory doesn't mention any people or pets, so there's nothing to find reference photos of. Say 'generate' when you're ready.")
		}
		if err := s.transition(memory.StageReadyForSearch); err != nil {
			panic(err)
		}
		return reply(s, fmt.Sprintf(
			"Sure — would you like reference photos of %s? Pick them yourself, say 'search' to let me look, or 'skip'.",
			subjectSummary(s.Extraction)))
	case wantsGenerate(in.Text):
		s.appendPhotoContext(in.AdditionalContext)
		return o.runPipeline(ctx, s, c)
	default:
		// Anything else is more story detail; fold it back into collection.
		if err := s.transition(memory.StageCollecting); err != nil {
			panic(err)
		}
		return o.handleCollecting(ctx, s, in, c)
	}
}

// runPipeline drives screening, generation and upload to completion. The
// guardrail checkpoints gate entry into the paid stages; a budget refusal
// returns the session to confirm_generation with everything else intact.
func (o *Orchestrator) runPipeline(ctx context.Context, s *Session, c Collaborators) Envelope {
	log := observability.LoggerFromContext(ctx)
	prompt := agents.BuildGenerationPrompt(s.Extraction, len(s.SelectedReferenceURLs), s.PhotoContext)

	// The deterministic guardrail screen is the first act of screening, so
	// the session enters the stage before the checkpoint runs; a refusal is
	// then an ordinary screening outcome.
	if err := s.transition(memory.StageScreening); err != nil {
		panic(err)
	}
	if env, refused := o.checkGuardrails(ctx, s, c, guardrail.PreScreening, prompt, estScreenerTokens+estGenerationTokens); refused {
		return env
	}

	verdict := agents.Verdict{Approved: true}
	comp, err := c.Screener.Run(ctx, prompt)
	if err != nil {
		// The deterministic content guardrail already passed; a screener
		// outage degrades to its verdict rather than blocking the user.
		log.Warn("screener call failed, continuing on guardrail verdict", slog.Any("error", err))
	} else {
		if _, rerr := c.Tracker.Record(ctx, s.UserID, s.ID, "content_screener", "screening", comp.Tokens); rerr != nil {
			log.Error("failed to record token usage", slog.Any("error", rerr))
		}
		verdict = agents.ParseVerdict(ctx, comp.Text)
	}
	if !verdict.Approved {
		if terr := s.transition(memory.StagePolicyViolation); terr != nil {
			panic(terr)
		}
		return policyEnvelope(s, verdict.Violations, verdict.Suggestions)
	}

	if env, refused := o.checkGuardrails(ctx, s, c, guardrail.PreGeneration, prompt, estGenerationTokens); refused {
		return env
	}
	if err := s.transition(memory.StageGenerating); err != nil {
		panic(err)
	}

	var refBytes [][]byte
	if len(s.SelectedReferenceURLs) > 0 && c.Photos != nil {
		refBytes = c.Photos.FetchReferenceBytes(ctx, s.SelectedReferenceURLs, maxReferencePhotos)
	}

	res, err := c.Generator.Generate(ctx, prompt, refBytes)
	if err != nil {
		if pe := asPolicyError(err); pe != nil {
			if terr := s.transition(memory.StagePolicyViolation); terr != nil {
				panic(terr)
			}
			return policyEnvelope(s, pe.Violations, pe.Suggestions)
		}
		log.Warn("image generation failed", slog.Any("error", err))
		if terr := s.transition(memory.StageConfirmGeneration); terr != nil {
			panic(terr)
		}
		env := reply(s, "I wasn't able to create the image just now. Say 'generate' to try again in a bit.")
		env.ErrorKind = memory.KindExternalTimeout
		return env
	}
	totals, rerr := c.Tracker.Record(ctx, s.UserID, s.ID, "image_generator", "generation", estGenerationTokens)
	if rerr != nil {
		log.Error("failed to record token usage", slog.Any("error", rerr))
	}

	if err := s.transition(memory.StageUploading); err != nil {
		panic(err)
	}
	artifact := &memory.Artifact{ImageURL: res.ImageURL, Prompt: prompt}
	if c.Photos != nil && len(res.ImageBytes) > 0 {
		filename := fmt.Sprintf("memory_%s_%d.png", s.ID, time.Now().Unix())
		mediaID, libURL, uerr := c.Photos.Upload(ctx, res.ImageBytes, filename, s.Extraction.WhatHappened)
		if uerr != nil {
			// The image exists; a failed save must not fail the memory.
			log.Warn("library upload failed", slog.Any("error", uerr))
			artifact.UploadFailed = true
		} else {
			artifact.MediaItemID = mediaID
			artifact.LibraryURL = libURL
		}
	} else {
		artifact.UploadFailed = true
	}

	s.Artifact = artifact
	if err := s.transition(memory.StageCompleted); err != nil {
		panic(err)
	}

	msg := "Your memory has been created!"
	if artifact.UploadFailed {
		msg += " I couldn't save it to your photo library, but the image itself is ready."
	} else {
		msg += " It's been saved to your photo library."
	}
	env := reply(s, msg)
	env.Artifact = artifact
	env.Extraction = s.Extraction
	if totals.Warn {
		env.Warning = "You're approaching your usage limit."
	}
	return env
}

// checkGuardrails runs the chain at a checkpoint and translates a refusal
// into an envelope. A content policy refusal moves the session to
// policy_violation; any other refusal inside screening walks it back to
// confirm_generation; outside the pipeline the stage is left untouched.
func (o *Orchestrator) checkGuardrails(ctx context.Context, s *Session, c Collaborators, cp guardrail.Checkpoint, content string, estTokens int) (Envelope, bool) {
	if c.Guardrails == nil {
		return Envelope{}, false
	}
	req := guardrail.Request{
		UserID:          s.UserID,
		SessionID:       s.ID,
		Content:         content,
		EstimatedTokens: estTokens,
	}
	if s.Extraction != nil {
		req.PeopleTags = s.Extraction.WhoPeople
	}
	err := c.Guardrails.Run(ctx, cp, req)
	if err == nil {
		return Envelope{}, false
	}

	if pe := asPolicyError(err); pe != nil {
		// Content policy only judges the screening and generating
		// checkpoints, and both stages have a policy_violation edge.
		if terr := s.transition(memory.StagePolicyViolation); terr != nil {
			panic(terr)
		}
		return policyEnvelope(s, pe.Violations, pe.Suggestions), true
	}
	// Any other refusal walks an entered screening stage back to the
	// confirmation point so the session stays usable.
	if s.Stage == memory.StageScreening {
		if terr := s.transition(memory.StageConfirmGeneration); terr != nil {
			panic(terr)
		}
	}
	if be := asBudgetError(err); be != nil {
		return budgetEnvelope(s, be), true
	}
	env := reply(s, "You're going a bit fast for me. Give it a moment and try again.")
	return env, true
}

func (o *Orchestrator) backToCollecting(s *Session) Envelope {
	if err := s.transition(memory.StageCollecting); err != nil {
		panic(err)
	}
	return reply(s, "Okay — tell me again what happened, and I'll update the story.")
}

func reauthEnvelope(s *Session) Envelope {
	env := reply(s, "I've lost access to your photo library. Please reconnect it, then try again — your memory is saved right where we left off.")
	env.ErrorKind = memory.KindAuthExpired
	env.RequiresReauth = true
	return env
}

func policyEnvelope(s *Session, violations, suggestions []string) Envelope {
	msg := "I can't create this memory because it goes against our content guidelines."
	if len(suggestions) > 0 {
		msg += " " + strings.Join(suggestions, " ")
	}
	msg += " Say 'start over' to try a different memory."
	env := reply(s, msg)
	env.ErrorKind = memory.KindPolicyViolation
	env.Violations = violations
	env.Suggestions = suggestions
	return env
}

// subjectSummary names the people and pets in an extraction for prompts to
// the user.
func subjectSummary(ext *memory.Extraction) string {
	subjects := append(append([]string{}, ext.WhoPeople...), ext.WhoPets...)
	switch len(subjects) {
	case 0:
		return "the people in it"
	case 1:
		return subjects[0]
	case 2:
		return subjects[0] + " and " + subjects[1]
	default:
		return strings.Join(subjects[:len(subjects)-1], ", ") + " and " + subjects[len(subjects)-1]
	}
}

// resolveSelection maps chosen media item ids onto the stored suggestion
// set, dropping ids that were never suggested.
func resolveSelection(suggested []memory.ReferencePhoto, ids []string) (resolvedIDs, urls []string) {
	byID := make(map[string]memory.ReferencePhoto, len(suggested))
	for _, p := range suggested {
		byID[p.MediaItemID] = p
	}
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			resolvedIDs = append(resolvedIDs, id)
			urls = append(urls, p.URL)
		}
	}
	return resolvedIDs, urls
}

// mergeReferences appends new photos to the set, deduplicating on media item
// id and keeping the total within the cap.
func mergeReferences(existing, incoming []memory.ReferencePhoto, limit int) []memory.ReferencePhoto {
	seen := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		seen[p.MediaItemID] = struct{}{}
	}
	out := existing
	for _, p := range incoming {
		if _, dup := seen[p.MediaItemID]; dup {
			continue
		}
		seen[p.MediaItemID] = struct{}{}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func allReferenceIDs(set []memory.ReferencePhoto) (ids, urls []string) {
	for _, p := range set {
		ids = append(ids, p.MediaItemID)
		urls = append(urls, p.URL)
	}
	return ids, urls
}
