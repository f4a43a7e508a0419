package swap

import (
	"errors"
	"fmt"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrOrderNotFound is returned by reads when the id is unknown.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderAlreadySettled means the order was executed or cancelled by
	// someone else: the caller lost the race, not the infrastructure.
	ErrOrderAlreadySettled = errors.New("order already settled")

	// ErrTimedOut means confirmation was not observed within the bound.
	// The operation's true outcome is unknown; the coordinator never
	// resubmits on its own, since a timed-out-but-landed approval or
	// action would be duplicated.
	ErrTimedOut = errors.New("confirmation timed out")

	// ErrFlowInFlight rejects a duplicate concurrent submission of the
	// same flow by the same actor.
	ErrFlowInFlight = errors.New("identical flow already in flight")
)

// ErrorKind classifies a flow's terminal failure.
type ErrorKind string

const (
	KindApprovalFailed ErrorKind = "approval_failed"
	KindActionFailed   ErrorKind = "action_failed"
	KindAlreadySettled ErrorKind = "order_already_settled"
	KindTimedOut       ErrorKind = "timed_out"
	KindTransport      ErrorKind = "transport"
)

// ValidationError reports bad input. It is raised before any ledger
// interaction and is locally recoverable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StepSnapshot records how far one step got; flow errors carry these so a
// caller can see partial progress (e.g. approval confirmed, action failed)
// and decide whether manual cleanup is warranted.
type StepSnapshot struct {
	Kind   StepKind
	Name   string
	Status StepStatus
	Detail string
}

// FlowError is the single terminal failure of one flow invocation.
type FlowError struct {
	Flow   string
	Kind   ErrorKind
	Reason string
	Steps  []StepSnapshot
	cause  error
}

func (e *FlowError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s flow: %s: %s", e.Flow, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s flow: %s", e.Flow, e.Kind)
}

func (e *FlowError) Unwrap() error { return e.cause }

// Is maps error kinds onto the package sentinels so callers can use
// errors.Is without unpacking the FlowError.
func (e *FlowError) Is(target error) bool {
	switch target {
	case ErrOrderAlreadySettled:
		return e.Kind == KindAlreadySettled
	case ErrTimedOut:
		return e.Kind == KindTimedOut
	}
	return false
}
