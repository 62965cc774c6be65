package health

import (
	"context"
	"time"
)

// Status of the service as a whole.
type Status string

// Health states.
const (
	Healthy  Status = "healthy"
	Degraded Status = "degraded"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name  string
	check CheckFunc
}

// Report is the outcome of one health probe round.
type Report struct {
	Status Status
	Checks map[string]string
}

// Service aggregates dependency probes into a single health report.
type Service struct {
	checks  []namedCheck
	timeout time.Duration
}

// New creates a health service with a per-round probe timeout.
func New(timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{timeout: timeout}
}

// Register adds a named dependency probe.
func (s *Service) Register(name string, check CheckFunc) {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
}

// Check runs all probes. Any failing probe degrades the overall status.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := Report{Status: Healthy, Checks: make(map[string]string, len(s.checks))}
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			report.Status = Degraded
			report.Checks[c.name] = err.Error()
			continue
		}
		report.Checks[c.name] = "ok"
	}
	return report
}
