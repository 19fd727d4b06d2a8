package cowbuilder

import "fmt"

// CommandNotFoundError reports a required executable missing from the host.
type CommandNotFoundError struct {
	Command string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("Required command not found: %s", e.Command)
}

// CowbuilderError reports a failed cowbuilder invocation.
type CowbuilderError struct {
	Operation Operation
	Err       error
}

func (e *CowbuilderError) Error() string {
	return fmt.Sprintf("Error running cowbuilder %s: %v", e.Operation.Flag(), e.Err)
}

func (e *CowbuilderError) Unwrap() error { return e.Err }

// RemoveError reports a failed forced removal of an existing base cow.
type RemoveError struct {
	Path string
	Err  error
}

func (e *RemoveError) Error() string {
	return fmt.Sprintf("Error removing existing base cow %s: %v", e.Path, e.Err)
}

func (e *RemoveError) Unwrap() error { return e.Err }

// MissingEnvironmentError is returned alongside StatusSkippedMissing when the
// dispatcher is configured to treat a missing environment as a failure.
type MissingEnvironmentError struct {
	BasePath string
}

func (e *MissingEnvironmentError) Error() string {
	return fmt.Sprintf("base cow does not exist at %s", e.BasePath)
}
