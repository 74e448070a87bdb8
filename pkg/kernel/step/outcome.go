// Package step defines the execution contract shared by every node of a
// procedure tree: the Outcome of one execution, the Step interface, and the
// three concrete node kinds (Action, Decision, Chain).
package step

import (
	"errors"
	"fmt"
)

// Kind tags an Outcome. Exactly one kind is set per execution.
type Kind string

const (
	KindSuccess    Kind = "success"
	KindRetry      Kind = "retry"
	KindInProgress Kind = "in_progress"
	KindFailed     Kind = "failed"
	KindComplete   Kind = "complete"
)

const unspecifiedFailure = "unspecified failure"

// Outcome is the result of a single Step execution.
type Outcome struct {
	Kind Kind
	// Hint optionally names the step that ran (or should run next) for diagnostics.
	Hint Step
	// Reason is mandatory for KindFailed. For retry/in-progress it is an optional
	// diagnostic note.
	Reason string
}

// Success reports a completed operation. hint may be nil.
func Success(hint Step) Outcome {
	return Outcome{Kind: KindSuccess, Hint: hint}
}

// Retry reports a transient failure or an unmet precondition.
func Retry() Outcome {
	return Outcome{Kind: KindRetry}
}

// Retryf is Retry with a diagnostic note.
func Retryf(format string, args ...any) Outcome {
	return Outcome{Kind: KindRetry, Reason: fmt.Sprintf(format, args...)}
}

// InProgress reports an accepted operation whose effect is not yet observable.
func InProgress() Outcome {
	return Outcome{Kind: KindInProgress}
}

// InProgressf is InProgress with a diagnostic note.
func InProgressf(format string, args ...any) Outcome {
	return Outcome{Kind: KindInProgress, Reason: fmt.Sprintf(format, args...)}
}

// Failed reports a condition retrying cannot fix. An empty reason is replaced
// so a Failed outcome always explains itself.
func Failed(reason string) Outcome {
	if reason == "" {
		reason = unspecifiedFailure
	}
	return Outcome{Kind: KindFailed, Reason: reason}
}

// Failedf is Failed with a formatted reason.
func Failedf(format string, args ...any) Outcome {
	return Failed(fmt.Sprintf(format, args...))
}

// Complete reports that the procedure's terminal goal has been reached.
func Complete() Outcome {
	return Outcome{Kind: KindComplete}
}

// IsSuccess reports whether the outcome is a Success.
func (o Outcome) IsSuccess() bool { return o.Kind == KindSuccess }

// IsPending reports whether the caller should wait and re-run (Retry or InProgress).
func (o Outcome) IsPending() bool {
	return o.Kind == KindRetry || o.Kind == KindInProgress
}

// IsTerminal reports whether the Driver must stop (Failed or Complete).
func (o Outcome) IsTerminal() bool {
	return o.Kind == KindFailed || o.Kind == KindComplete
}

// Validate checks the tag invariants.
func (o Outcome) Validate() error {
	switch o.Kind {
	case KindSuccess, KindRetry, KindInProgress, KindComplete:
		return nil
	case KindFailed:
		if o.Reason == "" {
			return errors.New("failed outcome without reason")
		}
		return nil
	case "":
		return errors.New("outcome kind is not set")
	default:
		return fmt.Errorf("unknown outcome kind %q", o.Kind)
	}
}

func (o Outcome) String() string {
	switch {
	case o.Kind == KindSuccess && o.Hint != nil:
		return fmt.Sprintf("success(%s)", o.Hint.ID())
	case o.Reason != "":
		return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
	default:
		return string(o.Kind)
	}
}
