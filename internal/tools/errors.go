package tools

import (
	"errors"
	"fmt"
)

// ErrNoPage is returned by browsers asked to act before Start.
var ErrNoPage = errors.New("browser page is not open")

// CapabilityNotFoundError is returned for action names outside the capability table.
type CapabilityNotFoundError struct {
	Name string
}

func (e *CapabilityNotFoundError) Error() string {
	return fmt.Sprintf("unknown capability: %s", e.Name)
}

// MissingArgumentError reports a required argument the model left out.
type MissingArgumentError struct {
	Capability Capability
	Argument   string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s: missing argument %q", e.Capability, e.Argument)
}

// InvalidArgumentError reports an argument that is present but unusable.
type InvalidArgumentError struct {
	Capability Capability
	Argument   string
	Reason     string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Capability, e.Argument, e.Reason)
}

// NavigationError wraps a failure to load the target page.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
