// Package team orchestrates the memory pipeline: it owns the session store,
// routes each input to the handler for the session's current stage, and runs
// the screening / generation / upload pipeline once the user confirms.
package team

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gibbonas/MemAgent/internal/agents"
	"github.com/gibbonas/MemAgent/internal/budget"
	"github.com/gibbonas/MemAgent/internal/config"
	"github.com/gibbonas/MemAgent/internal/guardrail"
	"github.com/gibbonas/MemAgent/internal/imagegen"
	"github.com/gibbonas/MemAgent/internal/memory"
	"github.com/gibbonas/MemAgent/internal/observability"
)

// Token estimates used for pre-spend budget checks. Deliberately above the
// typical call so a passing check is very unlikely to overrun the ceiling.
const (
	estCollectorTokens  = 1000
	estScreenerTokens   = 300
	estGenerationTokens = 2000
)

// maxInputLen bounds one user message. Longer input is refused without
// touching the session.
const maxInputLen = 2000

// maxReferencePhotos caps the merged reference set regardless of how the
// photos were acquired.
const maxReferencePhotos = 8

// CollectorAgent produces an extraction or a follow-up question from the
// conversation so far.
type CollectorAgent interface {
	Run(ctx context.Context, conversation string) (agents.Completion, error)
}

// ScreenerAgent judges a generation prompt against content policy.
type ScreenerAgent interface {
	Run(ctx context.Context, content string) (agents.Completion, error)
}

// ImageGenerator renders the final image from a prompt plus reference bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, referenceImages [][]byte) (imagegen.Result, error)
}

// PhotoLibrary is the per-request photo service handle. Implementations
// carry the caller's own authorization, so a new value is built for every
// request and never stored on the session.
type PhotoLibrary interface {
	SearchByDate(ctx context.Context, start, end time.Time, max int) ([]memory.ReferencePhoto, error)
	SearchByContent(ctx context.Context, categories []string, max int) ([]memory.ReferencePhoto, error)
	CreatePickerSession(ctx context.Context, userID string) (memory.PickerSession, error)
	GetPickerSession(ctx context.Context, pickerSessionID string) (memory.PickerSession, error)
	DeletePickerSession(ctx context.Context, pickerSessionID string) error
	ListPickerMedia(ctx context.Context, pickerSessionID string, max int) ([]memory.ReferencePhoto, error)
	PollUntilSet(ctx context.Context, pickerSessionID string, interval, timeout time.Duration) (bool, error)
	FetchReferenceBytes(ctx context.Context, urls []string, max int) [][]byte
	Upload(ctx context.Context, imageBytes []byte, filename, description string) (string, string, error)
}

// Collaborators bundles the per-request service handles. The orchestrator
// keeps none of them between calls.
type Collaborators struct {
	Collector CollectorAgent
	Screener  ScreenerAgent
	Generator ImageGenerator
	// Photos is nil when the request carries no photo authorization; photo
	// stages then degrade as if the library were unreachable.
	Photos     PhotoLibrary
	Tracker    *budget.Tracker
	Guardrails *guardrail.Chain
}

// Selection is a structured reference confirmation: which suggested photos
// to use, plus optional extra context for the image prompt.
type Selection struct {
	MediaItemIDs      []string `json:"media_item_ids"`
	URLs              []string `json:"urls"`
	AdditionalContext string   `json:"additional_context"`
}

// Input is one user event: free text, a structured selection, or both.
type Input struct {
	Text      string
	Selection *Selection
	// AdditionalContext is prompt context accompanying a structured
	// generate request. It never participates in intent matching.
	AdditionalContext string
}

type handlerFunc func(ctx context.Context, s *Session, in Input, c Collaborators) Envelope

// Orchestrator drives sessions through the stage machine. It is safe for
// concurrent use; events for the same session are serialized on the
// session's lock, so each session sees a strict event order.
type Orchestrator struct {
	sessions *Store
	cfg      config.Config
	handlers map[memory.Stage]handlerFunc
}

func New(sessions *Store, cfg config.Config) *Orchestrator {
	o := &Orchestrator{sessions: sessions, cfg: cfg}
	o.handlers = map[memory.Stage]handlerFunc{
		memory.StageCollecting:          o.handleCollecting,
		memory.StageReadyForSearch:      o.handleReadyForSearch,
		memory.StageSelectingReferences: o.handleSelectingReferences,
		memory.StageFetchingPicker:      o.handleSelectingReferences,
		memory.StageSearchFailed:        o.handleSearchFailed,
		memory.StageReadyToGenerate:     o.handleReadyToGenerate,
		memory.StageConfirmGeneration:   o.handleConfirmGeneration,
	}
	return o
}

// Sessions exposes the underlying store for transports and cleanup wiring.
func (o *Orchestrator) Sessions() *Store { return o.sessions }

// Handle processes one input event for a session and returns the reply
// envelope. It never returns an error: anything unexpected becomes a failed
// stage with a safe message, and recoverable trouble is reported in the
// envelope with the session left usable.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, userID string, in Input, c Collaborators) Envelope {
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" && in.Selection == nil {
		stage := memory.StageCollecting
		if s := o.sessions.Get(sessionID); s != nil {
			s.mu.Lock()
			stage = s.Stage
			s.mu.Unlock()
		}
		return Envelope{SessionID: sessionID, Stage: stage, Message: "Please tell me about the memory you'd like to create."}
	}

	s := o.sessions.GetOrCreate(sessionID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(in.Text) > maxInputLen {
		return Envelope{SessionID: sessionID, Stage: s.Stage,
			Message: "That message is a bit long for me. Could you retell it in a shorter form?"}
	}
	ctx = observability.WithSession(ctx, s.ID, userID)

	// Starting over always works, from any stage, and yields a fresh session
	// so the finished one stays readable.
	if in.Text != "" && wantsStartOver(in.Text) {
		fresh := o.sessions.GetOrCreate(uuid.NewString(), userID)
		observability.LoggerFromContext(ctx).Info("starting a new session", slog.String("new_session_id", fresh.ID))
		return Envelope{SessionID: fresh.ID, Stage: fresh.Stage,
			Message: "Let's start fresh. Tell me about the memory you'd like to create."}
	}

	if memory.IsTerminal(s.Stage) {
		return reply(s, o.terminalMessage(s))
	}

	if in.Text != "" {
		s.addMessage("user", in.Text)
	}
	env := o.dispatch(ctx, s, in, c)
	env.Message = guardrail.RedactSecrets(env.Message)
	s.addMessage("assistant", env.Message)
	s.touch()
	return env
}

// dispatch runs the stage handler, converting panics into a failed session
// rather than letting them escape into the transport.
func (o *Orchestrator) dispatch(ctx context.Context, s *Session, in Input, c Collaborators) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			observability.LoggerFromContext(ctx).Error("stage handler panicked",
				slog.String("stage", string(s.Stage)), slog.Any("panic", r))
			s.Stage = memory.StageFailed
			env = reply(s, "Something went wrong on my side and I can't continue this memory. Say 'start over' to begin a new one.")
			env.ErrorKind = memory.KindUnexpectedFailure
		}
	}()

	h, ok := o.handlers[s.Stage]
	if !ok {
		// Transient pipeline stages never wait for input; seeing one here
		// means a previous run was interrupted mid-pipeline.
		observability.LoggerFromContext(ctx).Error("input arrived in a stage with no handler",
			slog.String("stage", string(s.Stage)))
		s.Stage = memory.StageFailed
		env = reply(s, "This memory got stuck partway through. Say 'start over' to begin a new one.")
		env.ErrorKind = memory.KindUnexpectedFailure
		return env
	}
	return h(ctx, s, in, c)
}

func (o *Orchestrator) terminalMessage(s *Session) string {
	switch s.Stage {
	case memory.StageCompleted:
		return "This memory is finished. Say 'start over' whenever you'd like to create another one."
	case memory.StagePolicyViolation:
		return "I couldn't create that memory because of our content guidelines. Say 'start over' to try a different one."
	default:
		return "This session has ended. Say 'start over' to begin a new memory."
	}
}

// budgetEnvelope reports a budget refusal without disturbing the session's
// stage, so the user can come back once the window rolls over.
func budgetEnvelope(s *Session, err *budget.BudgetExceededError) Envelope {
	env := reply(s, budgetMessage(err))
	env.ErrorKind = memory.KindBudgetExceeded
	return env
}

func budgetMessage(err *budget.BudgetExceededError) string {
	if err.Scope == "daily" {
		return "You've reached today's usage limit. Your session is saved; please come back tomorrow to continue."
	}
	return "This session has reached its usage limit. Say 'start over' to continue in a new session."
}

// asBudgetError unwraps a budget refusal from a guardrail or tracker error.
func asBudgetError(err error) *budget.BudgetExceededError {
	var be *budget.BudgetExceededError
	if errors.As(err, &be) {
		return be
	}
	return nil
}

// asPolicyError unwraps a content policy refusal.
func asPolicyError(err error) *memory.PolicyViolationError {
	var pe *memory.PolicyViolationError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}
