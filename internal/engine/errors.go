package engine

// The error types below carry the failure taxonomy the HTTP layer maps to
// status codes. Handlers convert every external failure into one of these;
// nothing escapes as an unclassified fault.

// ValidationError covers missing or malformed request input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// ConfigError covers user-correctable configuration gaps, such as an
// integration that has not been connected yet.
type ConfigError struct {
	Msg string
}

func (e ConfigError) Error() string { return e.Msg }

// ForbiddenError is returned when a project belongs to a different user.
type ForbiddenError struct{}

func (ForbiddenError) Error() string { return "Forbidden" }

// ParseError is returned when model output cannot be parsed.
type ParseError struct {
	Msg string
}

func (e ParseError) Error() string { return e.Msg }

// UpstreamError is returned when an external call failed after the handler's
// own recovery policy was exhausted.
type UpstreamError struct {
	Msg string
}

func (e UpstreamError) Error() string { return e.Msg }
