package update

import "fmt"

// CheckError wraps a failed update check. Recoverable: the application
// keeps running on its current version.
type CheckError struct {
	Err error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("update check failed: %v", e.Err)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// StageError wraps a failed download or extraction. Recoverable: nothing
// was installed.
type StageError struct {
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("failed to stage release: %v", e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
