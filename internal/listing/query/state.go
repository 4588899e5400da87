package query

import "github.com/odyssey-erp/govconsole/internal/listing"

// Phase is the loading state of a controller.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// Event drives the loading state machine.
type Event string

const (
	EventStart   Event = "start"
	EventResolve Event = "resolve"
	EventReject  Event = "reject"
	EventSettle  Event = "settle"
	EventAbort   Event = "abort"
)

type transition struct {
	from  Phase
	event Event
}

// A superseding fetch restarts loading without leaving it.
var transitions = map[transition]Phase{
	{PhaseIdle, EventStart}:      PhaseLoading,
	{PhaseLoading, EventStart}:   PhaseLoading,
	{PhaseLoading, EventResolve}: PhaseSuccess,
	{PhaseLoading, EventReject}:  PhaseError,
	{PhaseLoading, EventAbort}:   PhaseIdle,
	{PhaseSuccess, EventSettle}:  PhaseIdle,
	{PhaseError, EventSettle}:    PhaseIdle,
}

// Advance returns the phase reached from p on e.
func Advance(p Phase, e Event) (Phase, bool) {
	next, ok := transitions[transition{p, e}]
	return next, ok
}

// EmptyState classifies what an empty table should tell the user.
type EmptyState string

const (
	// EmptyNone means rows are present.
	EmptyNone EmptyState = "none"
	// EmptyInitial means nothing was ever created; offer a create action.
	EmptyInitial EmptyState = "initial"
	// EmptyFiltered means the active filters matched nothing.
	EmptyFiltered EmptyState = "filtered"
	// EmptyUnavailable means the fetch failed and no fallback rows exist.
	EmptyUnavailable EmptyState = "unavailable"
)

// State is a snapshot of what a controller currently shows.
type State[T any] struct {
	SearchCondition listing.Params
	Rows            []T
	Total           int
	Loading         bool
	Phase           Phase
	Empty           EmptyState
	// Degraded is set while fallback rows replace a failed fetch.
	Degraded bool
	Err      error
}

func (s State[T]) clone() State[T] {
	out := s
	out.SearchCondition = s.SearchCondition.Clone()
	if s.Rows != nil {
		out.Rows = append([]T{}, s.Rows...)
	}
	return out
}
