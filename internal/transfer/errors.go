package transfer

import "fmt"

// PostCommitError reports a failure after the transfer was committed. The
// transfer stands; only the follow-up notification failed.
type PostCommitError struct {
	Step string
	Err  error
}

func (e *PostCommitError) Error() string {
	return fmt.Sprintf("transfer committed but %s failed: %v", e.Step, e.Err)
}

func (e *PostCommitError) Unwrap() error { return e.Err }
