package memory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the machine-readable error classification surfaced to callers.
// User-visible messages never carry internal detail beyond these kinds plus a
// short safe message.
type ErrorKind string

const (
	KindParseFailure      ErrorKind = "parse_failure"
	KindExternalTimeout   ErrorKind = "external_timeout"
	KindAuthExpired       ErrorKind = "auth_expired"
	KindPolicyViolation   ErrorKind = "policy_violation"
	KindBudgetExceeded    ErrorKind = "budget_exceeded"
	KindUnexpectedFailure ErrorKind = "unexpected_failure"
)

// ErrAuthExpired indicates the photo service rejected the caller's credential.
// Surfaced distinctly so the caller can re-authenticate instead of seeing a
// generic failure.
var ErrAuthExpired = errors.New("photo service authorization expired")

// PolicyViolationError carries the screener's verdict for a denied memory.
// Terminal for the current item; there is no retry.
type PolicyViolationError struct {
	Violations  []string
	Suggestions []string
	Severity    string
}

func (e *PolicyViolationError) Error() string {
	if len(e.Violations) == 0 {
		return "content policy violation"
	}
	return fmt.Sprintf("content policy violation: %s", strings.Join(e.Violations, ", "))
}

// IsAuthExpired reports whether err indicates an expired or rejected
// credential, including wrapped sentinel matches and bare 401 responses from
// the photo service.
func IsAuthExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthExpired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized")
}
