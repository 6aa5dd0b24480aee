package domain

// ValidationError reports a malformed field in a write request. The HTTP
// layer maps it to a 400 response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}
