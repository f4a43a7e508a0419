package swap

import (
	"context"
	"errors"
	"testing"
)

func noopSubmit(ctx context.Context) (TxHandle, error) { return "tx-1", nil }

func TestStepTransitions(t *testing.T) {
	s := newStep(StepApprove, "approve sell token", noopSubmit)
	if s.Status() != StepNotStarted {
		t.Fatalf("initial status = %s, want NOT_STARTED", s.Status())
	}

	s.markSubmitted()
	if s.Status() != StepSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", s.Status())
	}

	s.markConfirmed()
	if s.Status() != StepConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", s.Status())
	}
	if s.Detail() != nil {
		t.Errorf("confirmed step has detail %v", s.Detail())
	}
}

func TestStepFailure(t *testing.T) {
	cause := errors.New("reverted")
	s := newStep(StepAct, "create order", noopSubmit)
	s.markSubmitted()
	s.markFailed(cause)

	if s.Status() != StepFailed {
		t.Fatalf("status = %s, want FAILED", s.Status())
	}
	if s.Detail() != cause {
		t.Errorf("detail = %v, want %v", s.Detail(), cause)
	}

	snap := s.snapshot()
	if snap.Status != StepFailed || snap.Detail != "reverted" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestStepTerminalStatesPanicOnReuse(t *testing.T) {
	s := newStep(StepAct, "create order", noopSubmit)
	s.markSubmitted()
	s.markConfirmed()

	defer func() {
		if recover() == nil {
			t.Error("expected panic submitting a confirmed step")
		}
	}()
	s.markSubmitted()
}

func TestSubmissionSnapshots(t *testing.T) {
	sub := newSubmission("create",
		newStep(StepApprove, "approve sell token", noopSubmit),
		newStep(StepAct, "create order", noopSubmit),
	)
	sub.steps[0].markSubmitted()
	sub.steps[0].markConfirmed()

	snaps := sub.snapshots()
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	if snaps[0].Status != StepConfirmed || snaps[1].Status != StepNotStarted {
		t.Errorf("snapshots = %+v", snaps)
	}

	ferr := sub.fail(KindApprovalFailed, "rejected", nil)
	if ferr.Flow != "create" || ferr.Kind != KindApprovalFailed || len(ferr.Steps) != 2 {
		t.Errorf("flow error = %+v", ferr)
	}
}
