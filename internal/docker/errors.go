package docker

import (
	"errors"
	"fmt"

	dc "github.com/ory/dockertest/v3/docker"
	"github.com/vk/gridfleet/internal/parallel"
)

// APIError is an error response from the Docker daemon. Its message is shown
// to the user as is.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("docker API error (status %d): %s", e.Status, e.Message)
}

// Explanation implements parallel.Explainer.
func (e *APIError) Explanation() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// translate maps client errors for the named container onto the error kinds
// the parallel engine reports: daemon responses become *APIError, known state
// conflicts become *parallel.OperationError, and anything else (connection
// failures, timeouts) is passed through as unexpected.
func translate(err error, name string) error {
	if err == nil {
		return nil
	}

	var noSuch *dc.NoSuchContainer
	if errors.As(err, &noSuch) {
		return &parallel.OperationError{Msg: fmt.Sprintf("No such container: %s", name)}
	}
	var notRunning *dc.ContainerNotRunning
	if errors.As(err, &notRunning) {
		return &parallel.OperationError{Msg: fmt.Sprintf("Container %s is not running", name)}
	}
	var alreadyRunning *dc.ContainerAlreadyRunning
	if errors.As(err, &alreadyRunning) {
		return &parallel.OperationError{Msg: fmt.Sprintf("Container %s is already running", name)}
	}
	var apiErr *dc.Error
	if errors.As(err, &apiErr) {
		return &APIError{Status: apiErr.Status, Message: apiErr.Message, Err: err}
	}
	return fmt.Errorf("container %s: %w", name, err)
}
