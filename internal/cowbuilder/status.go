package cowbuilder

import "fmt"

// Operation is a cowbuilder action.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
	OpLogin
)

// Flag returns the cowbuilder command-line flag selecting the operation.
func (o Operation) Flag() string {
	switch o {
	case OpCreate:
		return "--create"
	case OpUpdate:
		return "--update"
	case OpLogin:
		return "--login"
	default:
		return fmt.Sprintf("--unknown(%d)", int(o))
	}
}

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpLogin:
		return "login"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// Status is the outcome of a dispatched operation.
type Status int

const (
	StatusSuccess Status = iota
	// StatusSkippedAlreadyExists: create found an existing base cow and
	// force was not set.
	StatusSkippedAlreadyExists
	// StatusSkippedMissing: update or login found no base cow.
	StatusSkippedMissing
	// StatusFailed is always returned with a non-nil error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkippedAlreadyExists:
		return "skipped-already-exists"
	case StatusSkippedMissing:
		return "skipped-missing"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}
