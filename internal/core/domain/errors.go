package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a deployment failure.
type ErrorKind int

const (
	// ErrCommand means the external command could not be started.
	ErrCommand ErrorKind = iota
	// ErrStatus means the command exited non-zero.
	ErrStatus
	// ErrUnexpected means the command produced output outside its contract.
	ErrUnexpected
	// ErrParse means command output could not be decoded.
	ErrParse
	ErrUnknown
	ErrDiscovery
	ErrCloneOrPull
	ErrStart
	ErrStop
	ErrRemove
	ErrCopy
	// ErrYAML means the compose document could not be read, decoded or written.
	ErrYAML
	// ErrKey means the compose document lacks an expected key or shape.
	ErrKey
)

// ErrorKinds lists every ErrorKind, in declaration order.
var ErrorKinds = []ErrorKind{
	ErrCommand, ErrStatus, ErrUnexpected, ErrParse, ErrUnknown, ErrDiscovery,
	ErrCloneOrPull, ErrStart, ErrStop, ErrRemove, ErrCopy, ErrYAML, ErrKey,
}

func (k ErrorKind) String() string {
	switch k {
	case ErrCommand:
		return "no response from system command"
	case ErrStatus:
		return "system command resulted in failure"
	case ErrUnexpected:
		return "system command returned unexpected output"
	case ErrParse:
		return "failed to parse output string"
	case ErrUnknown:
		return "error unknown to service domain"
	case ErrDiscovery:
		return "error in service discovery in docker"
	case ErrCloneOrPull:
		return "error cloning or pulling a repo"
	case ErrStart:
		return "error starting the docker service"
	case ErrStop:
		return "error stopping the docker service"
	case ErrRemove:
		return "error removing the contents of a directory"
	case ErrCopy:
		return "error copying the contents of a directory"
	case ErrYAML:
		return "error parsing yaml file"
	case ErrKey:
		return "error parsing expected key"
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// Error is a classified deployment failure. Key names the missing compose
// key for ErrKey; Err is the underlying cause, if any.
type Error struct {
	Kind ErrorKind
	Key  string
	Err  error
}

// NewError returns an *Error of the given kind wrapping cause.
func NewError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// KeyError returns an ErrKey error for the named key.
func KeyError(key string) *Error {
	return &Error{Kind: ErrKey, Key: key}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind == ErrKey {
		msg = fmt.Sprintf("%s '%s'", msg, e.Key)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: ErrStart}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the ErrorKind of err, or ErrUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrUnknown
}

// StatusFromError maps a deployment failure to the status shown to viewers.
// Most causes collapse into CommandFailed; discovery and clone/pull keep
// their own states.
func StatusFromError(err error) Status {
	var de *Error
	if !errors.As(err, &de) {
		return NewStatus(StatusUnknown)
	}
	switch de.Kind {
	case ErrCommand:
		if de.Err != nil {
			return CommandFailed(de.Err.Error())
		}
		return CommandFailed("Command could not be started")
	case ErrStatus:
		return CommandFailed("Command resulted in failure status")
	case ErrUnexpected:
		return CommandFailed("Command resulted in unexpected string")
	case ErrParse:
		return CommandFailed("Failed to parse command output")
	case ErrStart:
		return CommandFailed("Failed to start Docker service")
	case ErrStop:
		return CommandFailed("Failed to stop Docker service")
	case ErrRemove:
		return CommandFailed("Failed to remove live directory contents")
	case ErrCopy:
		return CommandFailed("Failed to copy repo contents")
	case ErrYAML:
		return CommandFailed("Failed to parse YAML file")
	case ErrKey:
		return CommandFailed(fmt.Sprintf("Failed to find key '%s'", de.Key))
	case ErrUnknown:
		return NewStatus(StatusUnknown)
	case ErrDiscovery:
		return NewStatus(StatusDiscoveryFailed)
	case ErrCloneOrPull:
		return NewStatus(StatusCloneOrPullFailed)
	}
	return NewStatus(StatusUnknown)
}

var (
	// ErrServiceNotFound is returned by stores for an unknown service id.
	ErrServiceNotFound = errors.New("service not found")
	// ErrServiceNameTaken is returned by stores when a name is already in use.
	ErrServiceNameTaken = errors.New("service name already in use")
)

// StoreError wraps any failure of the persistence collaborator so callers
// can tell database errors apart from deployment errors.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err came from the persistence collaborator.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
