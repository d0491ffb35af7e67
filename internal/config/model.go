package config

import (
	"errors"
	"fmt"
)

// DefaultStopTimeout is the number of seconds a container is given to exit
// after the stop signal before it is killed.
const DefaultStopTimeout = 10

// Model is the unified, format-agnostic representation of a fleet definition.
type Model struct {
	Project  string
	Services []*Service
}

// Service is one named service of the fleet. Each service maps to one
// container.
type Service struct {
	Name          string
	Image         string
	ContainerName string
	DependsOn     []string
	// StopTimeout is in seconds. Zero selects DefaultStopTimeout.
	StopTimeout int
	StopSignal  string
	Labels      map[string]string
}

// Service returns the service called name.
func (m *Model) Service(name string) (*Service, bool) {
	for _, s := range m.Services {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// ServiceNames returns the names of all services in definition order.
func (m *Model) ServiceNames() []string {
	names := make([]string, len(m.Services))
	for i, s := range m.Services {
		names[i] = s.Name
	}
	return names
}

// Merge appends the services of other. A project name set in both models must
// match.
func (m *Model) Merge(other *Model) error {
	if other == nil {
		return nil
	}
	if other.Project != "" {
		if m.Project != "" && m.Project != other.Project {
			return fmt.Errorf("conflicting project names %q and %q", m.Project, other.Project)
		}
		m.Project = other.Project
	}
	m.Services = append(m.Services, other.Services...)
	return nil
}

// Validate checks that the model is internally consistent: a project name is
// set, service names are unique and every dependency names a known service
// other than the service itself. Dependency cycles are not checked here.
func (m *Model) Validate() error {
	var errs []error
	if m.Project == "" {
		errs = append(errs, errors.New("project name is required"))
	}

	seen := make(map[string]struct{}, len(m.Services))
	for _, s := range m.Services {
		if s.Name == "" {
			errs = append(errs, errors.New("service with empty name"))
			continue
		}
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("service %q is defined more than once", s.Name))
		}
		seen[s.Name] = struct{}{}
		if s.StopTimeout < 0 {
			errs = append(errs, fmt.Errorf("service %q: stop_timeout must not be negative", s.Name))
		}
	}

	for _, s := range m.Services {
		for _, dep := range s.DependsOn {
			if dep == s.Name {
				errs = append(errs, fmt.Errorf("service %q depends on itself", s.Name))
				continue
			}
			if _, ok := seen[dep]; !ok {
				errs = append(errs, fmt.Errorf("service %q depends on undefined service %q", s.Name, dep))
			}
		}
	}
	return errors.Join(errs...)
}

// ContainerNameFor returns the configured container name, or the
// "<project>_<service>_1" default.
func (s *Service) ContainerNameFor(project string) string {
	if s.ContainerName != "" {
		return s.ContainerName
	}
	return fmt.Sprintf("%s_%s_1", project, s.Name)
}

// StopTimeoutOrDefault returns StopTimeout, or DefaultStopTimeout when unset.
func (s *Service) StopTimeoutOrDefault() int {
	if s.StopTimeout > 0 {
		return s.StopTimeout
	}
	return DefaultStopTimeout
}
