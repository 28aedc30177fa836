package domain

import "fmt"

// ValidationError reports bad input rejected before any mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NeedsInputError is returned when a field's policy is user_prompt and no
// explicit selection was supplied. The merge transaction is rolled back; the
// caller must retry with a field_selection override for the named field.
type NeedsInputError struct {
	Field string
}

func (e *NeedsInputError) Error() string {
	return fmt.Sprintf("field %q requires an explicit selection before this merge can run", e.Field)
}

// CycleError reports a self-referential parent choice that would create a
// cycle in the hierarchy.
type CycleError struct {
	Type   string
	Field  string
	Chosen string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s choice %q for %s would create a cycle", e.Field, e.Chosen, e.Type)
}

// HandlerNotFoundError reports a custom policy naming a handler that was
// never registered. This is a configuration error, never a silent no-op.
type HandlerNotFoundError struct {
	Type    string
	Field   string
	Handler string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no custom merge handler %q registered for %s.%s", e.Handler, e.Type, e.Field)
}
