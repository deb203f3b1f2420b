package domain

// Container is one running container as reported by the container runtime.
// Records are recomputed on every discovery call and never stored.
type Container struct {
	ID     string `json:"ID"`
	Image  string `json:"Image"`
	Names  string `json:"Names"`
	Labels string `json:"Labels"`
	State  string `json:"State"` // running, exited, etc.
}

// StateRunning is the runtime state of a live container.
const StateRunning = "running"
