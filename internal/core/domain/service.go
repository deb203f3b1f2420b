package domain

import (
	"errors"
	"fmt"
	"strings"
)

// labelFence surrounds a service name to form its correlation label.
const labelFence = "|||"

// Service is the deployment definition of one managed service.
//
// Name doubles as the staging/live directory name and as the payload of
// the correlation label, so it must be unique across definitions.
type Service struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ComposeName string `json:"compose_name"`
	RepoURL     string `json:"repo_url"`
	AccessURL   string `json:"access_url"`
	Active      bool   `json:"active"`
	CredFile    string `json:"cred_file,omitempty"`
	UseKey      bool   `json:"use_key"`
}

// LabelName returns the correlation label injected into the compose unit.
func (s Service) LabelName() string {
	return labelFence + s.Name + labelFence
}

// IdentityFile returns the SSH identity to use for git, or "" for the default.
func (s Service) IdentityFile() string {
	if !s.UseKey {
		return ""
	}
	return s.CredFile
}

// IsRunning reports whether one of the containers carries this service's
// correlation label and is in the running state.
func (s Service) IsRunning(containers []Container) bool {
	if len(containers) == 0 {
		return false
	}
	label := s.LabelName()
	for _, c := range containers {
		if strings.Contains(c.Labels, label) && c.State == StateRunning {
			return true
		}
	}
	return false
}

// Validate checks the fields the pipeline relies on.
func (s Service) Validate() error {
	var errs []error
	switch {
	case s.Name == "":
		errs = append(errs, errors.New("name is required"))
	case s.Name == "." || s.Name == "..", strings.ContainsAny(s.Name, "/\\ \t\n"):
		errs = append(errs, fmt.Errorf("name %q is not a single path segment", s.Name))
	case strings.Contains(s.Name, labelFence):
		errs = append(errs, fmt.Errorf("name %q must not contain %q", s.Name, labelFence))
	}
	if s.ComposeName == "" {
		errs = append(errs, errors.New("compose name is required"))
	}
	switch {
	case s.RepoURL == "":
		errs = append(errs, errors.New("repo url is required"))
	case strings.HasPrefix(s.RepoURL, "-"):
		errs = append(errs, fmt.Errorf("repo url %q must not start with '-'", s.RepoURL))
	}
	if s.UseKey && s.CredFile == "" {
		errs = append(errs, errors.New("cred file is required when use key is set"))
	}
	return errors.Join(errs...)
}
