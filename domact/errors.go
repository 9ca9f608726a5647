package domact

import "fmt"

// ErrElementNotFound is returned when no locate strategy matched. Non-fatal:
// the dispatcher reports it and the session continues.
type ErrElementNotFound struct {
	Target      string
	ElementType string
}

func (e *ErrElementNotFound) Error() string {
	if e.ElementType != "" {
		return fmt.Sprintf("domact: no %s element matching %q", e.ElementType, e.Target)
	}
	return fmt.Sprintf("domact: no element matching %q", e.Target)
}

// ErrUnknownAction is returned for action kinds the executor does not
// understand. Non-fatal.
type ErrUnknownAction struct {
	Kind string
}

func (e *ErrUnknownAction) Error() string {
	return fmt.Sprintf("domact: unknown action kind %q", e.Kind)
}
