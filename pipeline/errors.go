package pipeline

import "fmt"

// StageError reports the stage and file that failed a pipeline task.
type StageError struct {
	Task  string
	Stage string
	// File is the source path of the failing file. It is empty when a
	// Collector failed on the whole set.
	File string
	Err  error
}

func (e *StageError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %s: %v", e.Task, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Task, e.Stage, e.File, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
