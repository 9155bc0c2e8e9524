package llm

import "fmt"

// APICallError reports a failed backend call: transport failure, timeout,
// non-2xx status or an empty/blocked response. It is always fatal to a job.
type APICallError struct {
	Provider Provider
	Model    string
	Message  string
	Cause    error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s call (%s) failed: %s: %v", e.Provider, e.Model, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s call (%s) failed: %s", e.Provider, e.Model, e.Message)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}
