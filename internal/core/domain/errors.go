package domain

import "errors"

var (
	// ErrDuplicateNode indicates a pipeline graph declares the same node id twice.
	ErrDuplicateNode = errors.New("duplicate node id")
	// ErrUnknownNode indicates an edge references a node id that does not exist.
	ErrUnknownNode = errors.New("edge references unknown node")
	// ErrInvalidConfig indicates an out-of-range threshold or weight.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnknownDialect indicates a dialect tag outside the supported set.
	ErrUnknownDialect = errors.New("unknown dialect")
	// ErrMalformedPlan indicates a raw execution plan that cannot be parsed.
	ErrMalformedPlan = errors.New("malformed execution plan")
	// ErrPlanTooDeep indicates a plan tree exceeding the configured depth guard.
	ErrPlanTooDeep = errors.New("plan tree exceeds maximum depth")
	// ErrPlanTooLarge indicates a plan tree exceeding the configured node budget.
	ErrPlanTooLarge = errors.New("plan tree exceeds maximum node count")
)
