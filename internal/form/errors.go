package form

// ValidationError blocks submission locally; nothing is sent to the service.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
