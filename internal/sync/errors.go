package sync

import (
	"errors"
	"fmt"

	"github.com/leadengine/instance-sync/internal/storage"
)

// Operations reported in Error.Operation
const (
	OperationListSnapshots = "list-snapshots"
	OperationReadArchives  = "read-archives"
	OperationCreate        = "create-instance"
	OperationUpdate        = "update-instance"
	OperationReload        = "reload-instances"
)

// Error is a reconciliation failure tagged with the step that failed
type Error struct {
	Err       error
	Message   string
	Operation string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error, format string, args ...any) *Error {
	return &Error{
		Err:       err,
		Message:   fmt.Sprintf(format, args...) + ": " + err.Error(),
		Operation: op,
	}
}

// IsUniqueViolation reports whether err came from two writers racing on the same id
func IsUniqueViolation(err error) bool {
	return errors.Is(err, storage.ErrUniqueViolation)
}
