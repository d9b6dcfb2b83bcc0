// Package status defines the submission workflow states and the single
// legal predecessor required to enter each of them.
package status

import (
	"fmt"
	"strings"
)

// Status is the persisted workflow state of a submission.
type Status string

const (
	Fetched                Status = "fetched"
	TitleCleaned           Status = "title_cleaned"
	ShopifyMapped          Status = "shopify_mapped"
	SpecificationGenerated Status = "specification_generated"
	Error                  Status = "error"

	// Ignore excludes a submission from every pipeline. It is only reachable
	// through an administrative override.
	Ignore Status = "ignore"
)

var allStatuses = []Status{
	Fetched,
	TitleCleaned,
	ShopifyMapped,
	SpecificationGenerated,
	Error,
	Ignore,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, s := range allStatuses {
		set[s] = struct{}{}
	}
	return set
}()

// predecessors maps a target state to the one state a submission must be in
// to enter it. Fetched has no entry: it is set by ingest only.
var predecessors = map[Status]Status{
	TitleCleaned:           Fetched,
	ShopifyMapped:          TitleCleaned,
	SpecificationGenerated: ShopifyMapped,
}

// All returns every known status in pipeline order.
func All() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

func (s Status) String() string { return string(s) }

// Parse converts user input into a Status.
func Parse(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", value)
	}
	return s, nil
}

// RequiredPredecessor returns the state a submission must currently hold to
// move into target. The boolean is false when target cannot be entered
// through a transition (fetched, ignore) or accepts any source (error).
func RequiredPredecessor(target Status) (Status, bool) {
	from, ok := predecessors[target]
	return from, ok
}

// TransitionError describes a rejected state change. No mutation has been
// made when it is returned.
type TransitionError struct {
	SubmissionID string
	Current      Status
	Target       Status
	Required     Status // empty when target has no legal predecessor
}

func (e *TransitionError) Error() string {
	prefix := ""
	if e.SubmissionID != "" {
		prefix = e.SubmissionID + ": "
	}
	if e.Required == "" {
		return fmt.Sprintf("%sinvalid transition %s -> %s: %s cannot be entered by transition",
			prefix, e.Current, e.Target, e.Target)
	}
	return fmt.Sprintf("%sinvalid transition %s -> %s: requires current status %s",
		prefix, e.Current, e.Target, e.Required)
}

// ErrorKind classifies the failure for error reporting.
func (e *TransitionError) ErrorKind() string { return "state_violation" }

// Check validates moving from current to target. Error is always allowed.
func Check(current, target Status) error {
	if !target.Valid() {
		return fmt.Errorf("unknown target status %q", target)
	}
	if target == Error {
		return nil
	}
	required, ok := RequiredPredecessor(target)
	if !ok || current != required {
		return &TransitionError{Current: current, Target: target, Required: required}
	}
	return nil
}

// CanTransition reports whether Check would accept the move.
func CanTransition(current, target Status) bool {
	return Check(current, target) == nil
}
