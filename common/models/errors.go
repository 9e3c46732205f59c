package models

import (
	"fmt"
)

/**
ConfigurationError is returned when a job request can't be turned into a valid job script:
missing or malformed fields, unknown architectures or partitions, or a template placeholder
that has no value. It is fatal and never retried.
*/
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func NewConfigurationError(reason string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(reason, args...)}
}

/**
ExternalCommandError carries the non-zero exit code of an external program (EasyBuild, bash, sbatch).
The CLI exits with the same code.
*/
type ExternalCommandError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ExternalCommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("'%s' exited with code %d: %s", e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("'%s' exited with code %d", e.Command, e.ExitCode)
}

func (e *ExternalCommandError) Unwrap() error {
	return e.Err
}

// SubmissionError means a secondary job could not be queued. It is logged, never escalated.
type SubmissionError struct {
	JobName string
	Output  string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("could not submit job %s: %s", e.JobName, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
