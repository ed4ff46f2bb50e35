package inference

import "fmt"

// BackendUnavailableError reports a backend that was compiled out of
// this binary. Gated constructors return it immediately, naming what is
// missing, instead of failing later deep inside a measurement pass.
type BackendUnavailableError struct {
	Backend string
	Hint    string
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %s", e.Backend, e.Hint)
}

// ErrBackendUnavailable builds the error a capability-gated constructor
// returns when its backend is not built in.
func ErrBackendUnavailable(backend, hint string) error {
	return &BackendUnavailableError{Backend: backend, Hint: hint}
}
