package swap

import (
	"context"
	"fmt"
)

// StepKind distinguishes the two units of work a flow is made of.
type StepKind int

const (
	// StepApprove authorizes the ledger to move tokens on the actor's behalf.
	StepApprove StepKind = iota
	// StepAct performs the order operation itself (create/execute/cancel).
	StepAct
)

func (k StepKind) String() string {
	switch k {
	case StepApprove:
		return "approve"
	case StepAct:
		return "act"
	default:
		return "unknown"
	}
}

// StepStatus is the state machine NotStarted -> Submitted -> {Confirmed, Failed}.
// Confirmed and Failed are terminal per attempt; a step never self-retries.
// Retries construct a fresh step with the same intent, which keeps each
// step idempotent by construction and retry counting outside the machine.
type StepStatus int

const (
	StepNotStarted StepStatus = iota
	StepSubmitted
	StepConfirmed
	StepFailed
)

func (s StepStatus) String() string {
	switch s {
	case StepNotStarted:
		return "NOT_STARTED"
	case StepSubmitted:
		return "SUBMITTED"
	case StepConfirmed:
		return "CONFIRMED"
	case StepFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Step is a single idempotent unit of work against the ledger, created
// fresh per attempt. The submit closure captures the intent parameters;
// they never change once the step exists.
type Step struct {
	Kind   StepKind
	Name   string
	status StepStatus
	detail error
	submit func(ctx context.Context) (TxHandle, error)
}

func newStep(kind StepKind, name string, submit func(ctx context.Context) (TxHandle, error)) *Step {
	return &Step{Kind: kind, Name: name, status: StepNotStarted, submit: submit}
}

func (s *Step) Status() StepStatus { return s.status }

// Detail is the failure cause; present iff the step is Failed.
func (s *Step) Detail() error { return s.detail }

// Transitions are driven only by the coordinator; an out-of-order call is
// a programming error, hence the panics.

func (s *Step) markSubmitted() {
	if s.status != StepNotStarted {
		panic(fmt.Sprintf("step %s: cannot submit from %s", s.Name, s.status))
	}
	s.status = StepSubmitted
}

func (s *Step) markConfirmed() {
	if s.status != StepSubmitted {
		panic(fmt.Sprintf("step %s: cannot confirm from %s", s.Name, s.status))
	}
	s.status = StepConfirmed
}

func (s *Step) markFailed(cause error) {
	if s.status == StepConfirmed || s.status == StepFailed {
		panic(fmt.Sprintf("step %s: cannot fail from %s", s.Name, s.status))
	}
	s.status = StepFailed
	s.detail = cause
}

func (s *Step) snapshot() StepSnapshot {
	snap := StepSnapshot{Kind: s.Kind, Name: s.Name, Status: s.status}
	if s.detail != nil {
		snap.Detail = s.detail.Error()
	}
	return snap
}

// orderSubmission is the ordered list of steps one flow invocation runs.
// It exists only for the duration of the flow; nothing is retained across
// invocations. Step N+1 is never submitted before step N is Confirmed --
// this total order is what prevents "act" from running against an
// unauthorized allowance.
type orderSubmission struct {
	flow   string
	steps  []*Step
	cursor int
}

func newSubmission(flow string, steps ...*Step) *orderSubmission {
	return &orderSubmission{flow: flow, steps: steps}
}

func (s *orderSubmission) snapshots() []StepSnapshot {
	out := make([]StepSnapshot, len(s.steps))
	for i, st := range s.steps {
		out[i] = st.snapshot()
	}
	return out
}

func (s *orderSubmission) fail(kind ErrorKind, reason string, cause error) *FlowError {
	return &FlowError{
		Flow:   s.flow,
		Kind:   kind,
		Reason: reason,
		Steps:  s.snapshots(),
		cause:  cause,
	}
}
