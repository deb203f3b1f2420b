package domain

import "encoding/json"

// StatusKind enumerates the states a deployment can report.
type StatusKind int

const (
	StatusInactive StatusKind = iota
	StatusRunning
	StatusDiscoveryFailed
	StatusCommandFailed
	StatusCloneOrPullFailed
	StatusDeploymentRequested
	StatusCloning
	StatusPulling
	StatusStopping
	StatusStarting
	StatusCopying
	StatusRewritingConfig
	StatusUnknown
)

// StatusKinds lists every StatusKind, in declaration order.
var StatusKinds = []StatusKind{
	StatusInactive,
	StatusRunning,
	StatusDiscoveryFailed,
	StatusCommandFailed,
	StatusCloneOrPullFailed,
	StatusDeploymentRequested,
	StatusCloning,
	StatusPulling,
	StatusStopping,
	StatusStarting,
	StatusCopying,
	StatusRewritingConfig,
	StatusUnknown,
}

// Status is the transient progress or outcome of a deployment. Message is
// only meaningful for StatusCommandFailed.
type Status struct {
	Kind    StatusKind
	Message string
}

// NewStatus returns a Status without a message.
func NewStatus(kind StatusKind) Status {
	return Status{Kind: kind}
}

// CommandFailed returns a StatusCommandFailed carrying msg.
func CommandFailed(msg string) Status {
	return Status{Kind: StatusCommandFailed, Message: msg}
}

// String renders the status as a short human readable label.
func (s Status) String() string {
	switch s.Kind {
	case StatusInactive:
		return "Inactive"
	case StatusRunning:
		return "Running"
	case StatusDiscoveryFailed:
		return "Failed to discover service"
	case StatusCommandFailed:
		return "Failed command | " + s.Message
	case StatusCloneOrPullFailed:
		return "Failed to clone or pull"
	case StatusDeploymentRequested:
		return "Deployment requested..."
	case StatusCloning:
		return "Cloning repo..."
	case StatusPulling:
		return "Pulling repo..."
	case StatusStopping:
		return "Stopping service..."
	case StatusStarting:
		return "Starting service..."
	case StatusCopying:
		return "Copying repo..."
	case StatusRewritingConfig:
		return "Rewriting docker-compose.yml..."
	case StatusUnknown:
		return "Unknown status"
	}
	return "Unknown status"
}

// IsFailure reports whether the status is a terminal failure.
func (s Status) IsFailure() bool {
	switch s.Kind {
	case StatusDiscoveryFailed, StatusCommandFailed, StatusCloneOrPullFailed:
		return true
	}
	return false
}

// IsPending reports whether the status is an in-progress pipeline step.
func (s Status) IsPending() bool {
	switch s.Kind {
	case StatusDeploymentRequested, StatusCloning, StatusPulling, StatusStopping,
		StatusStarting, StatusCopying, StatusRewritingConfig:
		return true
	}
	return false
}

// Class returns the display class of a service carrying this status:
// success, warning, error or unknown.
func (s Status) Class() string {
	switch {
	case s.Kind == StatusRunning:
		return "success"
	case s.IsFailure():
		return "error"
	case s.IsPending():
		return "warning"
	}
	return "unknown"
}

// AppClass is the class of the connection indicator after this status was
// received. Unlike Class, Inactive counts as a healthy connection.
func (s Status) AppClass() string {
	if s.Kind == StatusInactive {
		return "success"
	}
	return s.Class()
}

// AppLabel summarises the status for the connection indicator.
func (s Status) AppLabel() string {
	switch {
	case s.Kind == StatusUnknown:
		return "Service unknown"
	case s.IsFailure():
		return "Service failure"
	case s.IsPending():
		return "Service pending..."
	}
	return "Connected"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Label string `json:"label"`
		Class string `json:"class"`
	}{s.String(), s.Class()})
}
