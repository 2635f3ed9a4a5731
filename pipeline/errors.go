package pipeline

import "errors"

// Step identifies where in the per-file workflow a failure occurred.
type Step string

// Workflow step constants.
const (
	StepLoad    Step = "load"
	StepFilter  Step = "filter"
	StepStage   Step = "stage"
	StepUpload  Step = "upload"
	StepArchive Step = "archive"
	StepCleanup Step = "cleanup"
)

// WorkflowError wraps a per-file failure with the step that produced it.
// Per-file errors are contained: logged at the task level, never retried,
// never propagated to sibling workflows or the dispatch loop.
type WorkflowError struct {
	// Step is the workflow step that failed.
	Step Step
	// Path is the source file being processed.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *WorkflowError) Error() string {
	return string(e.Step) + " " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// StepOf returns the workflow step recorded on err, if any.
func StepOf(err error) (Step, bool) {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Step, true
	}
	return "", false
}

// IsUploadError returns true if the error occurred at the upload step.
func IsUploadError(err error) bool {
	step, ok := StepOf(err)
	return ok && step == StepUpload
}
