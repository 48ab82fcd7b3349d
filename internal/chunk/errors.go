package chunk

import "errors"

var (
	// ErrNoResults means the instantiation produced nothing above its match goal.
	ErrNoResults = errors.New("no results above the match goal")
	// ErrNoGrounds means backtracing found no condition at or above the grounds level.
	ErrNoGrounds = errors.New("chunk has no grounds")
	// ErrMaxChunks means the per-cycle chunk limit was reached.
	ErrMaxChunks = errors.New("reached max-chunks for this cycle")
	// ErrDuplicate means production memory already holds the same rule.
	ErrDuplicate = errors.New("duplicate production")
	// ErrRefracted means the new rule does not match the firing it was built from.
	ErrRefracted = errors.New("refracted instantiation did not match")
	// ErrUnboundNot means an inequality could not be attached to any condition.
	ErrUnboundNot = errors.New("couldn't add Not test to chunk")
	// ErrReorder means the reorderer rejected the left-hand side.
	ErrReorder = errors.New("unable to reorder chunk")
	// ErrInvariant wraps a recovered panic inside a build.
	ErrInvariant = errors.New("chunk build invariant violated")
)

// Outcome is the terminal state of one chunk build.
type Outcome uint8

const (
	NoResults Outcome = iota
	Accepted
	Duplicate
	RefractedMismatch
	NoGrounds
	MaxChunks
	ReorderFailure
	InvariantViolation
)

var outcomeNames = [...]string{
	NoResults:          "no-results",
	Accepted:           "accepted",
	Duplicate:          "duplicate-production",
	RefractedMismatch:  "refracted-instantiation-did-not-match",
	NoGrounds:          "no-grounds",
	MaxChunks:          "max-chunks",
	ReorderFailure:     "reorder-failure",
	InvariantViolation: "invariant-violation",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// BuildState tracks how far a build progressed.
type BuildState uint8

const (
	Building BuildState = iota
	Variablized
	Reordered
	Inserted
	Rejected
)

func (s BuildState) String() string {
	switch s {
	case Building:
		return "building"
	case Variablized:
		return "variablized"
	case Reordered:
		return "reordered"
	case Inserted:
		return "inserted"
	default:
		return "rejected"
	}
}
