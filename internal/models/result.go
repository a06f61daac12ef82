package models

type SourceStatus string

const (
	StatusOK           SourceStatus = "ok"
	StatusUnconfigured SourceStatus = "unconfigured"
	StatusFailed       SourceStatus = "failed"
)

type SourceState struct {
	Status SourceStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// Result is the settled outcome of one source fetch.
type Result[T any] struct {
	Status SourceStatus
	Value  T
	Reason string
}

func Ok[T any](v T) Result[T] { return Result[T]{Status: StatusOK, Value: v} }

func Unconfigured[T any](reason string) Result[T] {
	return Result[T]{Status: StatusUnconfigured, Reason: reason}
}

func Failed[T any](reason string) Result[T] {
	return Result[T]{Status: StatusFailed, Reason: reason}
}

func (r Result[T]) OK() bool { return r.Status == StatusOK }

func (r Result[T]) State() SourceState {
	return SourceState{Status: r.Status, Error: r.Reason}
}
