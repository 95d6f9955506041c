package conversation

import "fmt"

// Steps reported by PartialWriteError.
const (
	StepRecordThread     = "record-thread"
	StepAttachFile       = "attach-file"
	StepRecordFile       = "record-file"
	StepDetachFile       = "detach-file"
	StepDeleteFile       = "delete-file"
	StepRemoveFileRecord = "remove-file-record"
)

// PartialWriteError reports a multi-step lifecycle operation that failed
// partway, leaving the provider and the metadata store out of agreement.
// Step names the first step that failed; earlier steps had succeeded.
type PartialWriteError struct {
	Step string
	Err  error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("operation failed at step %q: %v", e.Step, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
