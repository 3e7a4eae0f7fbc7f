package coordinator

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/dreamware/groupsync/internal/cluster"
)

var (
	// ErrBadRequest is returned before any node is contacted when the
	// group id is empty.
	ErrBadRequest = errors.New("group id must not be empty")

	// ErrClusterWriteFailed matches every *ClusterWriteFailedError.
	ErrClusterWriteFailed = errors.New("cluster write failed")

	// ErrPassAborted matches every *PassAbortedError.
	ErrPassAborted = errors.New("pass aborted")
)

// ClusterWriteFailedError is returned when at least one host refused the
// operation. Compensation has always run by the time it is returned;
// Unresolved lists the hosts compensation could not restore.
type ClusterWriteFailedError struct {
	PassID     string
	Phase      cluster.Phase
	GroupID    string
	Outcomes   cluster.OutcomeVector
	Unresolved []string
}

func (e *ClusterWriteFailedError) Error() string {
	msg := fmt.Sprintf("failed to %s group %s on all nodes, rollback completed", e.Phase, e.GroupID)
	if len(e.Unresolved) > 0 {
		msg += fmt.Sprintf(" (inspect manually: %s)", strings.Join(e.Unresolved, ", "))
	}
	return msg
}

// Is reports whether target is ErrClusterWriteFailed.
func (e *ClusterWriteFailedError) Is(target error) bool { return target == ErrClusterWriteFailed }

// PassAbortedError is returned when a node could not be reached or gave an
// unclassifiable answer. Nothing is compensated. Completed holds every
// outcome that resolved, in host order. Unknown lists every host whose call
// failed; Host is the first of them and Err its cause.
type PassAbortedError struct {
	PassID    string
	Phase     cluster.Phase
	GroupID   string
	Host      string
	Completed cluster.OutcomeVector
	Unknown   []string
	Err       error
}

func (e *PassAbortedError) Error() string {
	return fmt.Sprintf("%s pass for group %s aborted at %s: %v", e.Phase, e.GroupID, e.Host, e.Err)
}

// Unwrap returns the transport failure that stopped the pass.
func (e *PassAbortedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPassAborted.
func (e *PassAbortedError) Is(target error) bool { return target == ErrPassAborted }
