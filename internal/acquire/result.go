// SPDX-License-Identifier: MPL-2.0

package acquire

import "fmt"

// Result kinds.
const (
	KindSuccess Kind = iota
	KindAuthFailure
	KindUncommittedChanges
	KindUpdateSkipped
	KindStatusQueryFailed
	KindUnknown
)

type (
	// Kind classifies an acquisition outcome.
	Kind int

	// Result is the outcome of Acquire. Detail is a human-readable note;
	// Err carries the underlying failure when there is one.
	Result struct {
		Kind   Kind
		Detail string
		Err    error
	}
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindAuthFailure:
		return "authentication failure"
	case KindUncommittedChanges:
		return "uncommitted changes"
	case KindUpdateSkipped:
		return "update skipped"
	case KindStatusQueryFailed:
		return "status query failed"
	default:
		return "unknown"
	}
}

// OK reports whether the directory is usable for the next stage.
func (r Result) OK() bool {
	return r.Kind == KindSuccess || r.Kind == KindUpdateSkipped
}

// Blocking reports whether the outcome forbids any further acquisition attempt.
func (r Result) Blocking() bool {
	return r.Kind == KindUncommittedChanges || r.Kind == KindStatusQueryFailed
}

// String renders the result for logs and user messages.
func (r Result) String() string {
	switch {
	case r.Err != nil && r.Detail != "":
		return fmt.Sprintf("%s: %s: %v", r.Kind, r.Detail, r.Err)
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Kind, r.Err)
	case r.Detail != "":
		return fmt.Sprintf("%s: %s", r.Kind, r.Detail)
	default:
		return r.Kind.String()
	}
}

func success(detail string) Result { return Result{Kind: KindSuccess, Detail: detail} }

func skipped(detail string) Result { return Result{Kind: KindUpdateSkipped, Detail: detail} }

func unknown(detail string, err error) Result {
	return Result{Kind: KindUnknown, Detail: detail, Err: err}
}
