package ingestion

// ValidationError marks ingestion failures caused by the submitted document
// rather than by infrastructure, so handlers can map them to a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
